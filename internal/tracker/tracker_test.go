package tracker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/guardtrack/tracker/internal/tracker/config"
	"github.com/guardtrack/tracker/internal/tracker/gnss"
	"github.com/guardtrack/tracker/internal/tracker/modem"
	"github.com/guardtrack/tracker/internal/tracker/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testOwner = "+12025550123"

	smsHeader = `+CMT: "+12025550123","","24/01/01,12:00:00+04"`

	fixedLineA  = "+CGNSINF: 1,1,20240101120000.000,47.497912,19.040235,156.9,0.00,0.0,1,,1.1,1.4,0.9,,11,8,,,42,,"
	fixedLineB  = "+CGNSINF: 1,1,20240101121500.000,47.502912,19.040235,155.2,0.00,0.0,1,,1.1,1.4,0.9,,11,8,,,42,,"
	unfixedLine = "+CGNSINF: 1,0,,,,,,,0,,,,,,4,0,,,38,,"
)

type fixture struct {
	tr  *modem.TestTransport
	clk *modem.TestClock
	pin *modem.TestPin
	st  *store.Store
	trk *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := modem.NewTestClock()
	tr := modem.NewTestTransport(clk)
	pin := modem.NewTestPin(clk)

	sess, err := modem.NewSession(modem.TestDialer{Transport: tr}, pin, clk, modem.Config{})
	require.NoError(t, err)

	st := store.New(filepath.Join(t.TempDir(), "owner.bin"))

	conf := &config.MainConfig{}
	conf.Guard.ThresholdMicroDeg = 2700

	return &fixture{
		tr:  tr,
		clk: clk,
		pin: pin,
		st:  st,
		trk: New(sess, gnss.NewReceiver(sess, clk), st, clk, conf),
	}
}

// wroteFragment reports whether any raw write carries the given text.
func (f *fixture) wroteFragment(text string) bool {
	for _, w := range f.tr.Writes() {
		if strings.Contains(w, text) {
			return true
		}
	}
	return false
}

func (f *fixture) smsOpens() int {
	n := 0
	for _, w := range f.tr.Writes() {
		if strings.HasPrefix(w, `AT+CMGS="`) {
			n++
		}
	}
	return n
}

func TestDispatchActivate(t *testing.T) {
	f := newFixture(t)
	f.tr.Push("ACTIVATE\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	assert.Equal(t, testOwner, f.trk.owner)
	assert.Equal(t, ModeIdle, f.trk.mode)

	saved, err := f.st.Load()
	require.NoError(t, err)
	assert.Equal(t, testOwner, saved)

	assert.True(t, f.wroteFragment(`AT+CMGS="`+testOwner+`"`))
	assert.True(t, f.wroteFragment("ACTIVATED CALLS FROM "+testOwner))
	assert.True(t, f.tr.WroteCommand("AT+CMGD=4"))
}

func TestDispatchSingleWithoutActivation(t *testing.T) {
	f := newFixture(t)
	f.tr.Push("SINGLE\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	// commands work straight from the factory, ACTIVATE is optional
	assert.Equal(t, ModeSingle, f.trk.mode)
	assert.Equal(t, testOwner, f.trk.sender)
	assert.True(t, f.wroteFragment("SINGLE MEASUREMENT IN PROGRESS"))
}

func TestDispatchRepliesToCommandSender(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = "+15559990000"
	f.trk.sender = f.trk.owner
	f.tr.Push("SINGLE\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	// the acting sender receives the reports, pairing stays untouched
	assert.Equal(t, ModeSingle, f.trk.mode)
	assert.Equal(t, testOwner, f.trk.sender)
	assert.Equal(t, "+15559990000", f.trk.owner)
	assert.True(t, f.wroteFragment(`AT+CMGS="`+testOwner+`"`))
}

func TestSingleWithoutActivationReports(t *testing.T) {
	f := newFixture(t)
	f.tr.Reply("AT+CGNSINF", fixedLineA)
	f.tr.Reply("AT+CBC", "+CBC: 0,80,4136")
	f.tr.Push("SINGLE\r\n")

	ctx := context.Background()
	require.NoError(t, f.trk.dispatch(ctx, smsHeader))
	require.Equal(t, ModeSingle, f.trk.mode)
	require.NoError(t, f.trk.track(ctx))

	// the position report goes back to the requesting number
	assert.Equal(t, 2, f.smsOpens())
	assert.True(t, f.wroteFragment(`AT+CMGS="`+testOwner+`"`))
	assert.True(t, f.wroteFragment(" LONGTITUDE="))
	assert.True(t, f.wroteFragment("47.497912"))
}

func TestDispatchSingle(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.tr.Push("single please\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	assert.Equal(t, ModeSingle, f.trk.mode)
	assert.Equal(t, testOwner, f.trk.sender)
	assert.True(t, f.wroteFragment("SINGLE MEASUREMENT IN PROGRESS"))
}

func TestDispatchMulti(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.tr.Push("MULTI\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	assert.Equal(t, ModeMulti, f.trk.mode)
	assert.True(t, f.wroteFragment("MULTIPLE MEASUREMENTS IN PROGRESS"))
}

func TestDispatchGuard(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.prevLat, f.trk.prevLon = "47.497912", "19.040235"
	f.tr.Push("GUARD\r\n")

	require.NoError(t, f.trk.dispatch(context.Background(), smsHeader))

	assert.Equal(t, ModeGuard, f.trk.mode)
	assert.Equal(t, "0", f.trk.prevLat)
	assert.Equal(t, "0", f.trk.prevLon)
	assert.True(t, f.wroteFragment("GUARD MODE ACTIVATED"))
	assert.True(t, f.tr.WroteCommand("AT+CGNSPWR=1"))
	assert.True(t, f.tr.WroteCommand("AT+CGNSCOLD"))
}

func TestDispatchRingIgnored(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.trk.dispatch(context.Background(), "RING"))

	assert.Empty(t, f.tr.Writes())
}

func TestDispatchResyncOnGarbage(t *testing.T) {
	f := newFixture(t)
	f.tr.Reply("AT+CPIN?", "+CPIN: READY")
	f.tr.Reply("AT+CREG?", "+CREG: 0,1")

	require.NoError(t, f.trk.dispatch(context.Background(), "+PDP: DEACT"))

	assert.True(t, f.tr.WroteCommand("AT+CPIN?"))
	assert.True(t, f.tr.WroteCommand("AT+CREG?"))
	assert.True(t, f.tr.WroteCommand("AT+CMGD=4"))
}

func TestDispatchResyncOnRegistrationURC(t *testing.T) {
	f := newFixture(t)
	f.tr.Reply("AT+CPIN?", "+CPIN: READY")
	f.tr.Reply("AT+CREG?", "+CREG: 0,1")

	// +CREG reports are disabled at startup; one showing up means the
	// saved modem configuration was lost
	require.NoError(t, f.trk.dispatch(context.Background(), "+CREG: 2"))

	assert.True(t, f.tr.WroteCommand("AT+CPIN?"))
	assert.True(t, f.tr.WroteCommand("AT+CMGD=4"))
	assert.Equal(t, ModeIdle, f.trk.mode)
}

func TestTrackSingleReportsFix(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeSingle
	f.tr.Reply("AT+CGNSINF", fixedLineA)
	f.tr.Reply("AT+CBC", "+CBC: 0,80,4136")

	require.NoError(t, f.trk.track(context.Background()))

	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.True(t, f.tr.WroteCommand("AT+CGNSPWR=1"))
	assert.True(t, f.tr.WroteCommand("AT+CGNSPWR=0"))
	assert.True(t, f.tr.WroteCommand("AT+CBC"))

	assert.True(t, f.wroteFragment(" LONGTITUDE="))
	assert.True(t, f.wroteFragment("19.040235"))
	assert.True(t, f.wroteFragment(" LATITUDE="))
	assert.True(t, f.wroteFragment("47.497912"))
	assert.True(t, f.wroteFragment("\nBATTERY[mV]="))
	assert.True(t, f.wroteFragment("4136"))
	assert.True(t, f.wroteFragment("http://maps.google.com/maps?q="))
	assert.Equal(t, 1, f.smsOpens())
}

func TestTrackMultiCountsDown(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeMulti
	f.tr.Reply("AT+CGNSINF", fixedLineA)
	f.tr.Reply("AT+CBC", "+CBC: 0,80,4136")

	require.NoError(t, f.trk.track(context.Background()))

	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.Equal(t, 5, f.smsOpens())
	// four pacing gaps of 180s between the five cycles
	assert.GreaterOrEqual(t, f.clk.TotalSlept(), 4*180*time.Second)
}

func TestTrackSingleNoFixStaysQuiet(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeSingle
	f.tr.Reply("AT+CGNSINF", unfixedLine)

	require.NoError(t, f.trk.track(context.Background()))

	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.Zero(t, f.smsOpens())
	// the terminating cycle still shuts the engine down
	assert.True(t, f.tr.WroteCommand("AT+CGNSPWR=0"))
}

func TestTrackGuardStop(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeGuard
	f.tr.Reply("AT+CGNSINF", unfixedLine)
	f.tr.PushAfter(90*time.Second, "\r\n"+smsHeader+"\r\nSTOP\r\n")

	require.NoError(t, f.trk.track(context.Background()))

	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.True(t, f.wroteFragment("GUARD MODE STOPPED"))
	assert.True(t, f.tr.WroteCommand("AT+CGNSPWR=0"))
}

func TestTrackGuardStopFromAnySender(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = "+15559990000"
	f.trk.sender = f.trk.owner
	f.trk.mode = ModeGuard
	f.tr.Reply("AT+CGNSINF", unfixedLine)
	f.tr.PushAfter(90*time.Second, "\r\n"+smsHeader+"\r\nSTOP\r\n")

	require.NoError(t, f.trk.track(context.Background()))

	// STOP is honored regardless of who paired, ack goes to its sender
	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.True(t, f.wroteFragment("GUARD MODE STOPPED"))
	assert.True(t, f.wroteFragment(`AT+CMGS="`+testOwner+`"`))
}

func TestTrackGuardAlertThenFinalReport(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeGuard
	// first fix seeds the history, second is 0.005 degrees north
	f.tr.Reply("AT+CGNSINF", fixedLineA, fixedLineB)
	f.tr.Reply("AT+CBC", "+CBC: 0,80,4022")
	f.tr.PushAfter(2*time.Hour, "\r\n"+smsHeader+"\r\nSTOP\r\n")

	require.NoError(t, f.trk.track(context.Background()))

	// alert plus the one closing report, then back to idle
	assert.Equal(t, ModeIdle, f.trk.mode)
	assert.Equal(t, 2, f.smsOpens())
	assert.True(t, f.wroteFragment("ALERT, POSITION CHANGED TO :  "))
	assert.True(t, f.wroteFragment("\nBATTERY[mV]="))
	assert.True(t, f.wroteFragment("47.502912"))
	assert.Equal(t, "47.502912", f.trk.prevLat)
}

func TestTrackGuardQuietWhenParked(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeGuard
	f.tr.Reply("AT+CGNSINF", fixedLineA)
	f.tr.PushAfter(10*time.Minute, "\r\n"+smsHeader+"\r\nSTOP\r\n")

	require.NoError(t, f.trk.track(context.Background()))

	// identical fixes poll after poll, only the STOP ack goes out
	assert.Equal(t, 1, f.smsOpens())
	assert.False(t, f.wroteFragment("ALERT, POSITION CHANGED"))
}

func TestTrackCancellable(t *testing.T) {
	f := newFixture(t)
	f.trk.owner = testOwner
	f.trk.sender = testOwner
	f.trk.mode = ModeGuard
	f.tr.Reply("AT+CGNSINF", unfixedLine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.trk.track(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartupSequence(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.Save(testOwner))

	f.tr.Reply("AT", "OK")
	f.tr.Reply("AT+CPIN?", "+CPIN: READY")
	f.tr.Reply("AT+CREG?", "+CREG: 0,1")

	require.NoError(t, f.trk.startup(context.Background()))

	assert.Equal(t, testOwner, f.trk.owner)
	assert.Equal(t, testOwner, f.trk.sender)

	assert.True(t, f.tr.WroteCommand("ATE0"))
	assert.True(t, f.tr.WroteCommand("AT+IPR=9600"))
	assert.True(t, f.tr.WroteCommand("AT+CFUN=1"))
	assert.True(t, f.tr.WroteCommand("AT+CREG=0"))
	assert.True(t, f.tr.WroteCommand("AT&W"))
	assert.True(t, f.tr.WroteCommand("AT+CMGD=4"))

	// probe precedes everything else on the wire
	assert.Equal(t, 0, f.tr.IndexOfWrite("AT", 0))
	assert.Less(t, f.tr.IndexOfWrite("ATE0", 0), f.tr.IndexOfWrite("AT+IPR=9600", 0))
}

func TestStartupOptionalHousekeeping(t *testing.T) {
	f := newFixture(t)
	f.trk.conf.Device.DisableLED = true
	f.trk.conf.Device.ConfigureRIPin = true

	f.tr.Reply("AT", "OK")
	f.tr.Reply("AT+CPIN?", "+CPIN: READY")
	f.tr.Reply("AT+CREG?", "+CREG: 0,1")

	require.NoError(t, f.trk.startup(context.Background()))

	assert.True(t, f.tr.WroteCommand("AT+CNETLIGHT=0"))
	assert.True(t, f.tr.WroteCommand("AT+CFGRI=1"))
}

func TestIdlePassTimeoutReverifiesRegistration(t *testing.T) {
	f := newFixture(t)
	f.tr.Reply("AT+CREG?", "+CREG: 0,1")

	require.NoError(t, f.trk.idlePass(context.Background()))

	assert.True(t, f.tr.WroteCommand("AT+CMGF=1"))
	assert.True(t, f.tr.WroteCommand("AT+CNMI=1,2,0,0,0"))
	assert.True(t, f.tr.WroteCommand("AT+CSCLK=1"))
	assert.True(t, f.tr.WroteCommand("AT+CSCLK=0"))
	assert.True(t, f.tr.WroteCommand("AT+CREG?"))
}

func TestIdlePassDeliversCommand(t *testing.T) {
	f := newFixture(t)
	f.tr.PushAfter(30*time.Second, "\r\n"+smsHeader+"\r\nACTIVATE\r\n")

	require.NoError(t, f.trk.idlePass(context.Background()))

	assert.Equal(t, testOwner, f.trk.owner)
	assert.True(t, f.wroteFragment("ACTIVATED CALLS FROM "+testOwner))
}
