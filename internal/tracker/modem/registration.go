package modem

import (
	"context"
	"time"

	"github.com/guardtrack/tracker/internal/tracker/at"
	"github.com/guardtrack/tracker/pkg/log"
	"go.uber.org/zap"
)

const (
	// networkScanDelay is how long the modem gets to scan for a 2G
	// network after the radio comes back up.
	networkScanDelay = 120 * time.Second

	// coverageBackoff is the flight-mode sleep between scan attempts.
	// The typical no-coverage scenario is an underground garage, there
	// is no point burning battery on a faster retry.
	coverageBackoff = 30 * time.Minute

	// maxRegistrationAttempts bounds the supervisor to about 12 hours
	// of coverage outage before giving up.
	maxRegistrationAttempts = 24
)

// Registered queries AT+CREG? once. Home (0,1) and roaming (0,5) both
// count as registered.
func (s *Session) Registered() bool {
	line, err := s.Exec(at.CmdRegStatus)
	if err != nil {
		return false
	}
	return at.Contains(line, at.RegisteredHome) || at.Contains(line, at.RegisteredRoaming)
}

// SuperviseRegistration makes sure the modem is registered on a network.
// If it is not, the radio is cycled through flight mode with a long
// backoff to preserve battery:
//
//  1. query once, return when already registered
//  2. radio on, wait out the scan, query again
//  3. still nothing: flight mode, GNSS off, modem sleep, 30 minutes of
//     wall time, wake, radio on, back to 2
//  4. give up after 24 attempts
func (s *Session) SuperviseRegistration(ctx context.Context) error {
	s.Settle()
	if s.Registered() {
		return nil
	}

	log.Info("not registered, enabling radio and scanning")
	s.Settle()
	s.SetFlightMode(false)

	for attempt := 0; attempt < maxRegistrationAttempts; attempt++ {
		if err := s.sleepCtx(ctx, networkScanDelay); err != nil {
			return err
		}

		if s.Registered() {
			log.Info("network registration acquired", zap.Int("attempt", attempt+1))
			return nil
		}

		log.Info("still no coverage, backing off in flight mode", zap.Int("attempt", attempt+1))

		s.Settle()
		s.SetFlightMode(true)
		s.simple(at.CmdGnssPwrOff)
		s.EnterSleep()

		if err := s.sleepCtx(ctx, coverageBackoff); err != nil {
			return err
		}

		s.Wake()
		s.SetFlightMode(false)
	}

	return ErrNoCoverage
}
