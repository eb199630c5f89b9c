// Package gnss controls the GNSS engine embedded in the SIM7000 and turns
// its +CGNSINF reports into positions. Coordinates stay the decimal ASCII
// strings the modem emits; nothing downstream needs more precision than
// the verbatim text.
package gnss

import (
	"context"
	"time"

	"github.com/guardtrack/tracker/internal/tracker/at"
	"github.com/guardtrack/tracker/internal/tracker/modem"
	"github.com/guardtrack/tracker/pkg/log"
	"go.uber.org/zap"
)

const (
	// pollInterval is the gap between fix polls while searching.
	pollInterval = 15 * time.Second

	// maxPollAttempts bounds the search to about five minutes.
	maxPollAttempts = 20

	// Latitude fits [-90.000000, 90.000000], longitude
	// [-180.000000, 180.000000].
	maxLatLen = 10
	maxLonLen = 11
)

// Fix is one resolved position, verbatim from the modem.
type Fix struct {
	Lat string
	Lon string
}

// Result classifies an acquisition attempt.
type Result int

const (
	// ResultFixed means Fix carries a position.
	ResultFixed Result = iota
	// ResultNoFix means the bounded search timed out.
	ResultNoFix
	// ResultAbortGuard means a guard poll found no fix and quit
	// immediately; the guard outer loop re-enters within a minute.
	ResultAbortGuard
)

// Attempt selects the acquisition discipline.
type Attempt int

const (
	// AttemptColdStart powers the engine on and cold starts it before
	// polling. Used on the first and the last cycle of a tracking run.
	AttemptColdStart Attempt = iota
	// AttemptPollOnly polls a running engine, the middle cycles of a
	// MULTI run.
	AttemptPollOnly
	// AttemptGuard is a single poll with an immediate abort when the
	// engine has no fix.
	AttemptGuard
)

// Receiver drives the GNSS engine over the modem session.
type Receiver struct {
	s   *modem.Session
	clk modem.Clock
}

func NewReceiver(s *modem.Session, clk modem.Clock) *Receiver {
	return &Receiver{s: s, clk: clk}
}

// PowerOn enables the GNSS engine and cold starts it. A cold start drops
// the ephemeris cache; first fix takes minutes but survives the module
// having been moved while powered off.
func (r *Receiver) PowerOn() {
	r.clk.Sleep(time.Second)
	if err := r.s.Send(at.CmdGnssPwrOn); err != nil {
		log.Error("GNSS power on failed", zap.Error(err))
	}
	r.clk.Sleep(2 * time.Second)
	if err := r.s.Send(at.CmdGnssCold); err != nil {
		log.Error("GNSS cold start failed", zap.Error(err))
	}
}

// HotStart requests a hot restart of a powered engine. Kept for modems
// that lose fix between poll cycles; the tracking loop currently relies
// on plain polling.
func (r *Receiver) HotStart() {
	if err := r.s.Send(at.CmdGnssHot); err != nil {
		log.Error("GNSS hot start failed", zap.Error(err))
	}
	r.clk.Sleep(time.Second)
}

// PowerOff disables the GNSS engine to save battery.
func (r *Receiver) PowerOff() {
	if err := r.s.Send(at.CmdGnssPwrOff); err != nil {
		log.Error("GNSS power off failed", zap.Error(err))
	}
	r.clk.Sleep(time.Second)
}

// AcquireFix runs one acquisition. powerOffAfter applies to the bounded
// searches: the terminating cycle of a SINGLE or MULTI run shuts the
// engine down whether or not it fixed.
func (r *Receiver) AcquireFix(ctx context.Context, attempt Attempt, powerOffAfter bool) (Fix, Result) {
	switch attempt {
	case AttemptColdStart:
		r.PowerOn()
	default:
		// engine is already running, just pace the dialogue
		r.clk.Sleep(time.Second)
	}

	for polls := 0; polls < maxPollAttempts; polls++ {
		if ctx.Err() != nil {
			return Fix{}, ResultNoFix
		}

		if attempt != AttemptGuard {
			r.clk.Sleep(pollInterval)
		}

		line, err := r.s.Exec(at.CmdGnssInfo)
		if err != nil {
			log.Debug("GNSS info poll failed", zap.Error(err))
		}

		if at.Contains(line, at.GnssFixed) {
			fix := parseFix(line)
			r.clk.Sleep(2 * time.Second)

			if powerOffAfter {
				r.PowerOff()
			}

			log.Info("GNSS fix acquired", zap.String("lat", fix.Lat), zap.String("lon", fix.Lon))
			return fix, ResultFixed
		}

		// guard polls dont wait around, the outer loop re-enters soon
		if attempt == AttemptGuard {
			return Fix{}, ResultAbortGuard
		}
	}

	r.clk.Sleep(2 * time.Second)
	if powerOffAfter {
		r.PowerOff()
	}

	log.Info("GNSS search exhausted without a fix")
	return Fix{}, ResultNoFix
}

// parseFix pulls latitude and longitude out of a fixed +CGNSINF line:
//
//	+CGNSINF: <run>,<fix>,<utc>,<lat>,<lon>,<alt>,...
func parseFix(line string) Fix {
	lat := at.Field(line, 3)
	lon := at.Field(line, 4)

	if len(lat) > maxLatLen {
		lat = lat[:maxLatLen]
	}
	if len(lon) > maxLonLen {
		lon = lon[:maxLonLen]
	}

	return Fix{Lat: lat, Lon: lon}
}
