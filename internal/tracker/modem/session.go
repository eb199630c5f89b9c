// Package modem drives a SIM7000-family cellular module through its AT
// command dialogue: line framed reads, command/response exchanges, the
// sleep/wake handshake on the DTR pin and the network registration
// supervisor. All operations run on the callers goroutine; the firmware
// model is a single logical thread that owns the UART.
package modem

import (
	"context"
	"fmt"
	"time"

	"github.com/guardtrack/tracker/internal/tracker/at"
	"github.com/guardtrack/tracker/pkg/log"
	"go.uber.org/zap"
)

const (
	// lineByteCap is the hard cap on bytes consumed per line read.
	// Anything longer than a regular URC line is garbage.
	lineByteCap = 150

	// settleDelay paces consecutive AT commands. The SIM7000 is slow to
	// recover after a command, one second is the conservative gap the
	// module tolerates at every state.
	settleDelay = 1 * time.Second

	// dtrHold is how long each DTR edge is held. The datasheet minimum
	// before the modem accepts bytes from sleep is 50ms LOW; holding a
	// full second keeps a wide margin.
	dtrHold = 1 * time.Second

	// smsDeliveryDelay is the wait after Ctrl-Z so the network accepts
	// the message before the next command lands.
	smsDeliveryDelay = 10 * time.Second

	defaultLineTimeout = 5 * time.Second
	defaultSimPIN      = "1111"
)

// Config carries the session tunables.
type Config struct {
	// SimPIN is sent when the SIM reports +CPIN: SIM PIN.
	SimPIN string
	// LineTimeout bounds a single line read. It doubles as the poll
	// quantum of WaitForLine.
	LineTimeout time.Duration
}

// Session owns the AT dialogue with the modem. One command at a time,
// not safe for concurrent use.
type Session struct {
	tr  Transport
	dtr DTRPin
	clk Clock

	simPIN      string
	lineTimeout time.Duration

	// single byte pushback between WaitForLine and ReadLine
	pending  int
	sleeping bool
	closed   bool
}

// NewSession dials the transport and prepares a session. No AT traffic
// happens until Probe is called.
func NewSession(dialer Dialer, dtr DTRPin, clk Clock, conf Config) (*Session, error) {
	tr, err := dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}

	if conf.SimPIN == "" {
		conf.SimPIN = defaultSimPIN
	}
	if conf.LineTimeout <= 0 {
		conf.LineTimeout = defaultLineTimeout
	}

	if err := tr.SetReadTimeout(conf.LineTimeout); err != nil {
		tr.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Session{
		tr:          tr,
		dtr:         dtr,
		clk:         clk,
		simPIN:      conf.SimPIN,
		lineTimeout: conf.LineTimeout,
		pending:     -1,
	}, nil
}

func (s *Session) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.tr.Close()
}

// readByte returns the next byte, or ok=false when the read deadline
// passed without traffic.
func (s *Session) readByte() (byte, bool, error) {
	if s.pending >= 0 {
		b := byte(s.pending)
		s.pending = -1
		return b, true, nil
	}

	var buf [1]byte
	n, err := s.tr.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

func (s *Session) unread(b byte) {
	s.pending = int(b)
}

// ReadLine assembles one CRLF terminated line. Leading CR/LF bytes are
// discarded, the line ends at the first CR or LF after at least one
// payload byte. At most lineByteCap bytes are consumed; on overrun the
// captured prefix is returned. A silent modem yields ErrNoResponse.
func (s *Session) ReadLine() (string, error) {
	var line []byte

	for consumed := 0; consumed < lineByteCap; consumed++ {
		c, ok, err := s.readByte()
		if err != nil {
			return string(line), err
		}
		if !ok {
			if len(line) > 0 {
				return string(line), nil
			}
			return "", ErrNoResponse
		}

		if c == '\r' || c == '\n' {
			if len(line) > 0 {
				return string(line), nil
			}
			// leading CR/LF, keep waiting for the payload
			continue
		}
		line = append(line, c)
	}

	return string(line), nil
}

// WaitForLine blocks until a byte arrives and then reads the full line,
// or gives up after the timeout. The poll quantum is the line read
// timeout.
func (s *Session) WaitForLine(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := s.clk.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		b, ok, err := s.readByte()
		if err != nil {
			return "", err
		}
		if ok {
			s.unread(b)
			return s.ReadLine()
		}

		if !s.clk.Now().Before(deadline) {
			return "", ErrIdleTimeout
		}
	}
}

// Drain discards whatever sits in the receive buffer. Called before the
// watch windows so stale URC fragments dont count as fresh traffic.
func (s *Session) Drain() {
	_ = s.tr.SetReadTimeout(50 * time.Millisecond)
	defer func() { _ = s.tr.SetReadTimeout(s.lineTimeout) }()

	var buf [64]byte
	for {
		n, err := s.tr.Read(buf[:])
		if err != nil || n == 0 {
			break
		}
	}
	s.pending = -1
}

// Send writes one AT command terminated with CR.
func (s *Session) Send(cmd string) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.tr.Write([]byte(cmd + "\r"))
	if err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Settle waits the conservative inter-command gap.
func (s *Session) Settle() {
	s.clk.Sleep(settleDelay)
}

// SettleFor waits d between commands that need a bigger gap.
func (s *Session) SettleFor(d time.Duration) {
	s.clk.Sleep(d)
}

// Exec sends a command and reads a single response line.
func (s *Session) Exec(cmd string) (string, error) {
	if err := s.Send(cmd); err != nil {
		return "", err
	}
	return s.ReadLine()
}

// simple issues a command whose response nobody inspects and paces the
// dialogue afterwards. Errors are logged, not surfaced; the supervisor
// loops re-sync via Probe when the modem went away.
func (s *Session) simple(cmd string) {
	if err := s.Send(cmd); err != nil {
		log.Error("command write failed", zap.String("cmd", cmd), zap.Error(err))
	}
	s.Settle()
}

// Probe sends AT until the modem answers. "OK" is the regular reply, a
// bare "AT" means echo is still enabled on a factory fresh module. Echo
// is switched off once the modem responds.
func (s *Session) Probe(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.Send(at.CmdAt); err != nil {
			return err
		}

		line, err := s.ReadLine()
		if err == nil && (at.Contains(line, at.OK) || at.Contains(line, at.CmdAt)) {
			break
		}

		s.Settle()
	}

	s.Settle()
	s.simple(at.CmdEchoOff)
	log.Debug("modem probe complete, echo off")
	return nil
}

// CheckPIN queries the SIM state and enters the configured PIN when the
// card asks for one. Retries until the SIM reports READY.
func (s *Session) CheckPIN(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.SettleFor(2 * settleDelay)

		line, err := s.Exec(at.CmdSimStatus)
		if err != nil {
			continue
		}

		if at.Contains(line, at.SimReady) {
			return nil
		}
		if at.Contains(line, at.SimPinNeeded) {
			log.Info("SIM requests PIN")
			s.Settle()
			s.simple(fmt.Sprintf(`AT+CPIN="%s"`, s.simPIN))
		}
	}
}

// FixBaud pins the modem UART to 9600 bps so autosensing never drifts.
func (s *Session) FixBaud() {
	s.simple(at.CmdFixBaud)
}

// SaveConfig persists the current modem settings (AT&W).
func (s *Session) SaveConfig() {
	if err := s.Send(at.CmdSaveConfig); err != nil {
		log.Error("config save failed", zap.Error(err))
	}
	s.SettleFor(3 * settleDelay)
}

// SetFlightMode toggles the radio. Flight mode keeps the AT interface
// alive with the transceiver off, the cheap state for coverage outages.
func (s *Session) SetFlightMode(on bool) {
	if on {
		s.simple(at.CmdFlightOn)
	} else {
		s.simple(at.CmdFlightOff)
	}
}

// DisableRegistrationURCs stops +CREG unsolicited reports so losing
// coverage does not wake the idle loop.
func (s *Session) DisableRegistrationURCs() {
	s.simple(at.CmdRegUrcOff)
}

// EnableSMSDelivery selects text mode and routes incoming SMS straight
// to the UART as +CMT URCs.
func (s *Session) EnableSMSDelivery() {
	s.simple(at.CmdTextMode)
	s.simple(at.CmdSmsUrcMode)
}

// DisableLED turns off the network status LED.
func (s *Session) DisableLED() {
	s.simple(at.CmdLedOff)
}

// ConfigureRIPin makes the modem pulse the RI line on URCs, for boards
// that route RI to a wake capable GPIO.
func (s *Session) ConfigureRIPin() {
	s.simple(at.CmdRiPinUrc)
}

// EnterSleep puts the modem into clock-stop sleep. DTR must already be
// HIGH; the modem stays reachable through a Wake call only.
func (s *Session) EnterSleep() {
	if err := s.dtr.High(); err != nil {
		log.Error("DTR high failed", zap.Error(err))
	}
	if err := s.Send(at.CmdSleepOn); err != nil {
		log.Error("sleep enable failed", zap.Error(err))
	}
	s.SettleFor(2 * settleDelay)
	s.sleeping = true
}

// Wake performs the DTR handshake that gets the modem out of sleep:
// DTR LOW, hold (the modem needs >=50ms before it accepts bytes), a dummy
// AT, sleep disable, DTR HIGH again. Safe to call on an awake modem, the
// sequence is idempotent.
func (s *Session) Wake() {
	if err := s.dtr.Low(); err != nil {
		log.Error("DTR low failed", zap.Error(err))
	}
	s.SettleFor(dtrHold)

	// dummy AT so the UART receiver is proven alive again
	if err := s.Send(at.CmdAt); err != nil {
		log.Error("wake AT failed", zap.Error(err))
	}
	s.Settle()

	if err := s.Send(at.CmdSleepOff); err != nil {
		log.Error("sleep disable failed", zap.Error(err))
	}
	s.Settle()

	if err := s.dtr.High(); err != nil {
		log.Error("DTR high failed", zap.Error(err))
	}
	s.SettleFor(dtrHold)
	s.sleeping = false
}

// Sleeping reports whether the last sleep/wake transition left the modem
// in clock-stop sleep.
func (s *Session) Sleeping() bool {
	return s.sleeping
}

// SendSMS transmits one text-mode SMS assembled from fragments:
// AT+CMGF=1, AT+CMGS="<to>", the body bytes, Ctrl-Z. The delivery wait
// afterwards keeps the +CMGS confirmation from interleaving with the
// next command.
func (s *Session) SendSMS(to string, fragments ...string) error {
	if s.closed {
		return ErrClosed
	}

	s.simple(at.CmdTextMode)

	if _, err := s.tr.Write([]byte(at.CmdSendSmsOpen + to + `"` + at.CRLF)); err != nil {
		return fmt.Errorf("open sms to %q: %w", to, err)
	}
	s.Settle()

	for _, frag := range fragments {
		if _, err := s.tr.Write([]byte(frag)); err != nil {
			return fmt.Errorf("sms body: %w", err)
		}
	}

	if _, err := s.tr.Write([]byte(at.CtrlZ)); err != nil {
		return fmt.Errorf("sms terminate: %w", err)
	}

	log.Info("SMS submitted", zap.String("to", to))
	s.SettleFor(smsDeliveryDelay)
	return nil
}

// DeleteAllSMS clears the SIM message memory. Always paired with an SMS
// send or a dispatch so the 20-odd slots of the SIM never fill up.
func (s *Session) DeleteAllSMS() {
	s.simple(at.CmdTextMode)
	if err := s.Send(at.CmdDeleteSms); err != nil {
		log.Error("sms delete failed", zap.Error(err))
	}
	s.SettleFor(2 * settleDelay)
}

// CheckBattery reads the supply voltage in millivolts from AT+CBC.
// The value stays a decimal string, it goes into outgoing SMS verbatim.
func (s *Session) CheckBattery() string {
	line, err := s.Exec(at.CmdBattery)
	if err != nil {
		log.Warn("battery query failed", zap.Error(err))
		return ""
	}
	return at.Field(line, 2)
}

// sleepCtx sleeps in one minute slices so a shutdown does not have to
// wait out a 30 minute backoff.
func (s *Session) sleepCtx(ctx context.Context, d time.Duration) error {
	const slice = time.Minute
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := slice
		if d < slice {
			step = d
		}
		s.clk.Sleep(step)
		d -= step
	}
	return ctx.Err()
}
