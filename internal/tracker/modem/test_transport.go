package modem

import (
	"io"
	"strings"
	"sync"
	"time"
)

// TestTransport simulates the modem for tests. Writes are recorded and
// answered from a reply script, reads serve the queued bytes one at a
// time. An empty queue behaves like a serial read timeout: the fake
// clock advances by the read timeout and Read returns (0, nil), exactly
// the contract real ports have.
type TestTransport struct {
	mu sync.Mutex

	clk *TestClock

	writes     []string
	writeTimes []time.Time
	rx         []byte
	delayed    []delayedPush
	replies    map[string][]string

	readTimeout time.Duration
	closed      bool
}

func NewTestTransport(clk *TestClock) *TestTransport {
	return &TestTransport{
		clk:         clk,
		replies:     make(map[string][]string),
		readTimeout: time.Second,
	}
}

// Reply scripts the successive response lines for a command. The last
// entry stays sticky once the others are consumed.
func (t *TestTransport) Reply(cmd string, lines ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = lines
}

// Push queues unsolicited bytes, the way a URC arrives on a real UART.
func (t *TestTransport) Push(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, []byte(data)...)
}

type delayedPush struct {
	at   time.Time
	data []byte
}

// PushAfter queues unsolicited bytes that become readable once the fake
// clock has advanced d past the current time. This survives an
// intermediate Drain, which a plain Push would not.
func (t *TestTransport) PushAfter(d time.Duration, data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delayed = append(t.delayed, delayedPush{at: t.clk.Now().Add(d), data: []byte(data)})
}

// promoteDue moves delayed pushes whose time has come into the receive
// buffer. Callers hold t.mu.
func (t *TestTransport) promoteDue() {
	now := t.clk.Now()
	kept := t.delayed[:0]
	for _, p := range t.delayed {
		if !p.at.After(now) {
			t.rx = append(t.rx, p.data...)
		} else {
			kept = append(kept, p)
		}
	}
	t.delayed = kept
}

// Writes returns every write payload seen so far.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

// WriteTime returns the fake-clock timestamp of write i.
func (t *TestTransport) WriteTime(i int) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeTimes[i]
}

// IndexOfWrite returns the first write index carrying cmd at or after
// the given index, or -1.
func (t *TestTransport) IndexOfWrite(cmd string, from int) int {
	for i, w := range t.Writes() {
		if i >= from && strings.TrimRight(w, "\r\n") == cmd {
			return i
		}
	}
	return -1
}

// WroteCommand reports whether cmd was sent (ignoring line terminators).
func (t *TestTransport) WroteCommand(cmd string) bool {
	for _, w := range t.Writes() {
		if strings.TrimRight(w, "\r\n") == cmd {
			return true
		}
	}
	return false
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.ErrClosedPipe
	}

	t.writes = append(t.writes, string(p))
	t.writeTimes = append(t.writeTimes, t.clk.Now())

	cmd := strings.TrimRight(string(p), "\r\n")
	if lines, ok := t.replies[cmd]; ok && len(lines) > 0 {
		line := lines[0]
		if len(lines) > 1 {
			t.replies[cmd] = lines[1:]
		}
		t.rx = append(t.rx, []byte("\r\n"+line+"\r\n")...)
	}

	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.EOF
	}

	t.promoteDue()

	if len(t.rx) == 0 {
		// pretend the read deadline passed
		t.clk.Advance(t.readTimeout)
		return 0, nil
	}

	n := copy(p, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

func (t *TestTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = d
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// TestDialer hands out a prepared TestTransport.
type TestDialer struct {
	Transport *TestTransport
}

func (d TestDialer) Dial() (Transport, error) {
	return d.Transport, nil
}

// TestClock is a manual clock. Sleep advances it instantly so supervisor
// tests can wait out 30 minute backoffs in microseconds.
type TestClock struct {
	mu    sync.Mutex
	now   time.Time
	Slept []time.Duration
}

func NewTestClock() *TestClock {
	return &TestClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.Slept = append(c.Slept, d)
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TotalSlept sums all recorded sleeps.
func (c *TestClock) TotalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.Slept {
		total += d
	}
	return total
}

// PinEdge is one recorded DTR transition.
type PinEdge struct {
	High bool
	At   time.Time
}

// TestPin records DTR transitions with fake-clock timestamps.
type TestPin struct {
	mu    sync.Mutex
	clk   *TestClock
	level bool
	Edges []PinEdge
}

func NewTestPin(clk *TestClock) *TestPin {
	return &TestPin{clk: clk, level: true}
}

func (p *TestPin) High() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = true
	p.Edges = append(p.Edges, PinEdge{High: true, At: p.clk.Now()})
	return nil
}

func (p *TestPin) Low() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = false
	p.Edges = append(p.Edges, PinEdge{High: false, At: p.clk.Now()})
	return nil
}

func (p *TestPin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}
