// Package tracker is the top level state machine of the device: boot the
// modem, sleep until an SMS command arrives, run the requested measurement
// cycles and report positions back to the caller.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardtrack/tracker/internal/tracker/at"
	"github.com/guardtrack/tracker/internal/tracker/config"
	"github.com/guardtrack/tracker/internal/tracker/gnss"
	"github.com/guardtrack/tracker/internal/tracker/modem"
	"github.com/guardtrack/tracker/internal/tracker/store"
	"github.com/guardtrack/tracker/pkg/log"
)

// Mode doubles as the remaining cycle counter of a tracking run. MULTI
// counts down from five; GUARD stays at its sentinel until stopped.
type Mode int

const (
	ModeIdle   Mode = 0
	ModeSingle Mode = 1
	ModeMulti  Mode = 5
	ModeGuard  Mode = 255
)

// SMS command keywords, matched case insensitively anywhere in the body.
const (
	kwActivate = "ACTIVATE"
	kwSingle   = "SINGLE"
	kwMulti    = "MULTI"
	kwGuard    = "GUARD"
	kwStop     = "STOP"
)

const (
	// bootDelay gives the modem time to finish its power-on init before
	// the first AT probe.
	bootDelay = 10 * time.Second

	// searchGrace is the initial network search window after boot,
	// before the registration supervisor takes over.
	searchGrace = 90 * time.Second

	// idleWatch is how long the idle loop listens for an SMS before it
	// wakes the modem to re-verify registration.
	idleWatch = 15 * time.Minute

	// guardWatchWindow is the listen window between guard position
	// polls; a STOP command lands within a minute.
	guardWatchWindow = 60 * time.Second

	// multiPace spaces the cycles of a MULTI run.
	multiPace = 180 * time.Second
)

// Tracker wires the modem session, the GNSS receiver and the caller store
// into the command loop. Single goroutine, matching the single logical
// thread that owns the UART.
type Tracker struct {
	sess  *modem.Session
	gnss  *gnss.Receiver
	store *store.Store
	clk   modem.Clock
	conf  *config.MainConfig

	mode Mode

	// owner is the caller paired by ACTIVATE; sender is whoever issued
	// the current command and receives its reports.
	owner  string
	sender string

	// last reported position, "0" until the first fix of a guard run
	prevLat string
	prevLon string
}

func New(sess *modem.Session, rcv *gnss.Receiver, st *store.Store, clk modem.Clock, conf *config.MainConfig) *Tracker {
	return &Tracker{
		sess:    sess,
		gnss:    rcv,
		store:   st,
		clk:     clk,
		conf:    conf,
		prevLat: "0",
		prevLon: "0",
	}
}

// Run executes the boot sequence and then alternates between the idle
// watch and tracking runs until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.startup(ctx); err != nil {
		return err
	}

	for {
		if err := t.idlePass(ctx); err != nil {
			return err
		}
		if t.mode != ModeIdle {
			if err := t.track(ctx); err != nil {
				return err
			}
		}
	}
}

// startup brings the modem from power-on to registered and idle: probe,
// pin the baud rate, radio on, URC and LED housekeeping, SIM PIN, a clean
// SMS memory and a registered network.
func (t *Tracker) startup(ctx context.Context) error {
	if err := t.sleepCtx(ctx, bootDelay); err != nil {
		return err
	}

	if err := t.sess.Probe(ctx); err != nil {
		return err
	}
	t.sess.FixBaud()
	t.sess.SetFlightMode(false)

	if t.conf.Device.DisableLED {
		t.sess.DisableLED()
	}
	if t.conf.Device.ConfigureRIPin {
		t.sess.ConfigureRIPin()
	}

	t.sess.DisableRegistrationURCs()
	t.sess.SaveConfig()

	if err := t.sess.CheckPIN(ctx); err != nil {
		return err
	}
	t.sess.DeleteAllSMS()

	if err := t.sleepCtx(ctx, searchGrace); err != nil {
		return err
	}
	if err := t.sess.SuperviseRegistration(ctx); err != nil {
		return err
	}

	owner, err := t.store.Load()
	if err != nil {
		log.Warn("caller store unreadable, starting unactivated", zap.Error(err))
		owner = ""
	}
	t.owner = owner
	t.sender = owner
	log.Info("startup complete", zap.String("owner", owner))
	return nil
}

// idlePass parks the modem in clock-stop sleep and waits one watch window
// for traffic. An SMS dispatches a command; silence wakes the modem to
// re-verify network registration before the next window.
func (t *Tracker) idlePass(ctx context.Context) error {
	t.sess.EnableSMSDelivery()
	t.gnss.PowerOff()
	t.sess.EnterSleep()
	t.sess.Drain()

	line, err := t.sess.WaitForLine(ctx, idleWatch)
	switch {
	case errors.Is(err, modem.ErrIdleTimeout):
		t.sess.Wake()
		return t.sess.SuperviseRegistration(ctx)
	case err != nil:
		return err
	}

	return t.dispatch(ctx, line)
}

// dispatch handles one line of unsolicited traffic received while idle.
// SMS deliveries carry the command keywords; RING is ignored; everything
// else, including registration URCs that should be disabled, means the
// modem state drifted and triggers a full re-sync.
func (t *Tracker) dispatch(ctx context.Context, header string) error {
	if at.Classify(header) != at.TypeURC || at.Contains(header, at.UrcRegStatus) {
		return t.resync(ctx, header)
	}

	if at.Contains(header, at.UrcRing) {
		return nil
	}

	sender := at.QuotedSender(header)
	body, err := t.sess.ReadLine()
	if err != nil {
		log.Warn("SMS body missing", zap.Error(err))
		t.sess.Wake()
		t.sess.DeleteAllSMS()
		return nil
	}

	t.sess.Wake()

	switch {
	case at.ContainsFold(body, kwActivate):
		t.activate(sender)
	case at.ContainsFold(body, kwSingle):
		t.sender = sender
		t.mode = ModeSingle
		t.ack(sender, ackSingle)
	case at.ContainsFold(body, kwMulti):
		t.sender = sender
		t.mode = ModeMulti
		t.ack(sender, ackMulti)
	case at.ContainsFold(body, kwGuard):
		t.sender = sender
		t.mode = ModeGuard
		t.prevLat, t.prevLon = "0", "0"
		t.ack(sender, ackGuard)
		t.gnss.PowerOn()
	default:
		log.Info("SMS ignored", zap.String("from", sender))
		t.sess.DeleteAllSMS()
	}

	return nil
}

// resync recovers from traffic the idle loop cannot interpret: wake the
// modem, re-verify the SIM and the network, purge the SMS memory.
func (t *Tracker) resync(ctx context.Context, line string) error {
	log.Debug("unexpected traffic while idle, re-syncing", zap.String("line", line))

	t.sess.Wake()
	if err := t.sess.CheckPIN(ctx); err != nil {
		return err
	}
	if err := t.sess.SuperviseRegistration(ctx); err != nil {
		return err
	}
	t.sess.DeleteAllSMS()
	return nil
}

// activate records the sender as the paired caller. First come first
// served; a later ACTIVATE from a different number takes over.
func (t *Tracker) activate(sender string) {
	if sender == "" {
		log.Warn("ACTIVATE with no sender number")
		t.sess.DeleteAllSMS()
		return
	}

	t.owner = sender
	t.sender = sender
	if err := t.store.Save(sender); err != nil {
		log.Error("caller store write failed", zap.Error(err))
	}
	log.Info("activated", zap.String("owner", sender))
	t.ack(sender, ackActivated+sender)
}

// ack confirms a command by SMS and clears the message memory so the
// command just handled is not re-delivered.
func (t *Tracker) ack(to string, fragments ...string) {
	if err := t.sess.SendSMS(to, fragments...); err != nil {
		log.Error("ack SMS failed", zap.Error(err))
	}
	t.sess.DeleteAllSMS()
}

// track runs measurement cycles until the mode counter drains or a guard
// run is stopped. Each cycle acquires a fix, reports it and paces to the
// next one.
func (t *Tracker) track(ctx context.Context) error {
	run := uuid.New().String()
	log.Info("tracking run started", zap.String("run", run), zap.Int("mode", int(t.mode)))

	for t.mode != ModeIdle {
		if err := ctx.Err(); err != nil {
			return err
		}

		var attempt gnss.Attempt
		switch t.mode {
		case ModeGuard:
			attempt = gnss.AttemptGuard
		case ModeSingle, ModeMulti:
			// first and last cycle of a run cold start the engine
			attempt = gnss.AttemptColdStart
		default:
			attempt = gnss.AttemptPollOnly
		}

		fix, res := t.gnss.AcquireFix(ctx, attempt, t.mode == ModeSingle)

		if res == gnss.ResultFixed {
			if t.mode == ModeGuard {
				if displaced(t.prevLat, t.prevLon, fix.Lat, fix.Lon, t.conf.Guard.ThresholdMicroDeg) {
					log.Info("guard alert", zap.String("run", run),
						zap.String("lat", fix.Lat), zap.String("lon", fix.Lon))
					t.ack(t.sender, alertFragments(fix.Lat, fix.Lon)...)
					t.gnss.PowerOff()
					t.prevLat, t.prevLon = fix.Lat, fix.Lon

					// one full reporting cycle follows the alert
					t.mode = ModeSingle
					continue
				}
				t.prevLat, t.prevLon = fix.Lat, fix.Lon
			} else {
				battery := t.sess.CheckBattery()
				t.ack(t.sender, reportFragments(fix.Lat, fix.Lon, battery)...)
				t.prevLat, t.prevLon = fix.Lat, fix.Lon
			}
		}

		if t.mode != ModeGuard && t.mode > ModeIdle {
			t.mode--
		}

		switch {
		case t.mode == ModeGuard:
			if err := t.guardWatch(ctx); err != nil {
				return err
			}
		case t.mode > ModeIdle:
			if err := t.sleepCtx(ctx, multiPace); err != nil {
				return err
			}
		}
	}

	log.Info("tracking run finished", zap.String("run", run))
	return nil
}

// guardWatch listens one window for a STOP command between guard polls.
func (t *Tracker) guardWatch(ctx context.Context) error {
	t.sess.Settle()
	t.sess.Drain()

	line, err := t.sess.WaitForLine(ctx, guardWatchWindow)
	switch {
	case errors.Is(err, modem.ErrIdleTimeout):
		return nil
	case err != nil:
		return err
	}

	if at.Classify(line) != at.TypeURC || !at.Contains(line, at.UrcSmsDeliver) {
		return nil
	}

	sender := at.QuotedSender(line)
	body, err := t.sess.ReadLine()
	if err != nil {
		return nil
	}

	if at.ContainsFold(body, kwStop) {
		log.Info("guard mode stopped", zap.String("from", sender))
		t.ack(sender, ackStopped)
		t.gnss.PowerOff()
		t.mode = ModeIdle
		return nil
	}

	// unrelated SMS, drop it so the memory never fills during guard
	t.sess.DeleteAllSMS()
	return nil
}

// sleepCtx sleeps in one minute slices so shutdown is never blocked on a
// long pacing wait.
func (t *Tracker) sleepCtx(ctx context.Context, d time.Duration) error {
	const slice = time.Minute
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := slice
		if d < slice {
			step = d
		}
		t.clk.Sleep(step)
		d -= step
	}
	return ctx.Err()
}
