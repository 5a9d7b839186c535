package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ramses-go/ramses-go/frame"
)

// State is the FSM's current state.
type State int

const (
	Inactive State = iota
	IsInIdle
	WantEcho
	WantRply
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case IsInIdle:
		return "IsInIdle"
	case WantEcho:
		return "WantEcho"
	case WantRply:
		return "WantRply"
	default:
		return "Unknown"
	}
}

type eventKind int

const (
	evConnMade eventKind = iota
	evConnLost
	evPacket
	evEnqueue
	evTimeout
)

type event struct {
	kind    eventKind
	pkt     frame.Packet
	entry   *queueEntry
	err     error
	timerID int
}

// Context is the protocol finite state machine: it orders outbound commands,
// enforces send/echo/reply semantics with retry and timeout, and dispatches
// received packets to the in-flight command's waiter. One Context per
// Protocol/Gateway, and it admits at most one command in flight at a time.
type Context struct {
	sender      FrameSender
	syncAvoider SyncAvoider
	identity    IdentityRewriter
	logger      *slog.Logger

	echoTimeout   time.Duration
	replyTimeout  time.Duration
	maxRetryLimit int

	queue *boundedQueue

	events chan event
	done   chan struct{}

	// run-loop-owned state (only ever touched inside run()).
	state State
	cmd   *Command
	qos   QosParams
	// effTxHeader/effRxHeader are the tx_header/rx_header of the frame as it
	// was actually put on the air: cmd.TxHeader/RxHeader are derived once
	// from the frame's original sender, but identity.RewriteSender may
	// substitute the active HGI id for the 18:000730 sentinel immediately
	// before transmission (see transmit()), which changes the sender the
	// echo/reply will carry. Recomputed on every transmit so onPacket always
	// compares against the header the wire actually saw.
	effTxHeader frame.Header
	effRxHeader frame.Header
	resultCh    chan sendResult
	txCount     int
	txLimit     int
	multiplier  int
	timerGen    int
	timerStop   func()
}

// Option configures a Context.
type Option func(*Context)

func WithEchoTimeout(d time.Duration) Option  { return func(c *Context) { c.echoTimeout = d } }
func WithReplyTimeout(d time.Duration) Option { return func(c *Context) { c.replyTimeout = d } }
func WithMaxRetryLimit(n int) Option {
	return func(c *Context) {
		if n > MaxRetryLimit {
			n = MaxRetryLimit
		}
		c.maxRetryLimit = n
	}
}
func WithBufferSize(n int) Option { return func(c *Context) { c.queue = newBoundedQueue(n) } }
func WithSyncAvoider(s SyncAvoider) Option { return func(c *Context) { c.syncAvoider = s } }
func WithIdentityRewriter(r IdentityRewriter) Option {
	return func(c *Context) { c.identity = r }
}
func WithLogger(l *slog.Logger) Option { return func(c *Context) { c.logger = l } }

// NewContext creates an FSM bound to sender, starting in Inactive.
func NewContext(sender FrameSender, opts ...Option) *Context {
	c := &Context{
		sender:        sender,
		logger:        slog.Default(),
		echoTimeout:   DefaultEchoTimeout,
		replyTimeout:  DefaultReplyTimeout,
		maxRetryLimit: MaxRetryLimit,
		queue:         newBoundedQueue(DefaultBufferSize),
		events:        make(chan event, 64),
		done:          make(chan struct{}),
		state:         Inactive,
	}
	for _, o := range opts {
		o(c)
	}
	go c.run()
	return c
}

// String renders the FSM's state for debugging, via go-spew.
func (c *Context) String() string {
	return spew.Sprintf("<ProtocolContext state=%s tx=%d/%d>", c.state, c.txCount, c.txLimit)
}

// Close stops the FSM's run loop.
func (c *Context) Close() { close(c.done) }

// ConnectionMade transitions Inactive -> IsInIdle.
func (c *Context) ConnectionMade() { c.events <- event{kind: evConnMade} }

// ConnectionLost transitions to Inactive, failing any in-flight command.
func (c *Context) ConnectionLost(err error) { c.events <- event{kind: evConnLost, err: err} }

// PacketReceived feeds an inbound packet to the FSM for echo/reply matching.
func (c *Context) PacketReceived(pkt frame.Packet) { c.events <- event{kind: evPacket, pkt: pkt} }

// SendCmd enqueues cmd with qos and priority, and blocks until the FSM
// resolves it (echo, or echo+reply) or fails it (send_failed/cancelled),
// subject to the global per-call timeout (qos.Timeout, capped).
func (c *Context) SendCmd(ctx context.Context, cmd Command, priority Priority, qos QosParams) (frame.Packet, error) {
	qos = qos.Normalize()

	entry := &queueEntry{
		priority: priority,
		arrival:  time.Now(),
		cmd:      cmd,
		qos:      qos,
		result:   make(chan sendResult, 1),
	}

	select {
	case c.events <- event{kind: evEnqueue, entry: entry}:
	case <-c.done:
		return frame.Packet{}, &ProtocolSendFailed{Msg: "FSM is closed"}
	}

	timeout := qos.Timeout
	if timeout > MaxSendTimeout {
		timeout = MaxSendTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-entry.result:
		return res.pkt, res.err
	case <-timer.C:
		return frame.Packet{}, &ProtocolSendFailed{Msg: "expired global send timeout"}
	case <-ctx.Done():
		return frame.Packet{}, ctx.Err()
	case <-c.done:
		return frame.Packet{}, &ProtocolSendFailed{Msg: "FSM is closed"}
	}
}

// run is the FSM's single event-processing goroutine; all mutable FSM state
// is owned exclusively by this goroutine, so none of it needs a mutex.
func (c *Context) run() {
	for {
		select {
		case e := <-c.events:
			c.handle(e)
		case <-c.done:
			return
		}
	}
}

func (c *Context) handle(e event) {
	switch e.kind {
	case evConnMade:
		if c.state == Inactive {
			c.setState(IsInIdle)
			c.checkQueue()
		}
	case evConnLost:
		c.onConnectionLost(e.err)
	case evEnqueue:
		c.enqueue(e.entry)
	case evPacket:
		c.onPacket(e.pkt)
	case evTimeout:
		if e.timerID == c.timerGen {
			c.onTimeout()
		}
	}
}

func (c *Context) enqueue(entry *queueEntry) {
	if c.state == Inactive {
		entry.result <- sendResult{err: &ProtocolSendFailed{Msg: "no active transport"}}
		return
	}
	if !c.queue.TryPush(entry) {
		entry.result <- sendResult{err: &ProtocolSendFailed{Msg: "send buffer overflow"}}
		return
	}
	if c.state == IsInIdle {
		c.checkQueue()
	}
}

func (c *Context) checkQueue() {
	if c.state != IsInIdle {
		return
	}
	entry := c.queue.Pop()
	if entry == nil {
		return
	}
	c.cmd = &entry.cmd
	c.qos = entry.qos
	c.resultCh = entry.result
	c.txCount = 0
	c.txLimit = min(c.qos.MaxRetries, c.maxRetryLimit) + 1

	c.setState(WantEcho)
	c.transmit(false)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// transmit sends the current command (first attempt or retry), honoring
// sync-cycle avoidance and identity rewriting.
func (c *Context) transmit(isRetry bool) {
	if c.cmd == nil {
		return
	}
	c.txCount++

	f := c.cmd.Frame
	if c.identity != nil {
		f = c.identity.RewriteSender(f)
	}
	text := f.Format()

	// The rewritten frame's headers are what the echo/reply will actually
	// carry; fall back to the command's own headers if re-derivation fails
	// (shouldn't happen, since f was already validated as cmd.Frame).
	if hdr, err := f.Header(); err == nil {
		c.effTxHeader = hdr
	} else {
		c.effTxHeader = c.cmd.TxHeader
	}
	if c.cmd.HasRxHdr {
		if hdr, err := f.RxHeader(); err == nil {
			c.effRxHeader = hdr
		} else {
			c.effRxHeader = c.cmd.RxHeader
		}
	} else {
		c.effRxHeader = ""
	}

	go func(text string) {
		ctx := context.Background()
		if c.syncAvoider != nil {
			for c.syncAvoider.SyncCycleImminent() {
				time.Sleep(10 * time.Millisecond)
			}
		}
		if err := c.sender.WriteFrame(ctx, text); err != nil {
			c.events <- event{kind: evConnLost, err: &TransportError{Msg: "write failed", Cause: err}}
		}
	}(text)

	c.armTimer(c.echoTimeout)
}

func (c *Context) armTimer(base time.Duration) {
	c.timerGen++
	gen := c.timerGen
	if c.timerStop != nil {
		c.timerStop()
	}
	delay := base * time.Duration(1<<uint(c.multiplier))
	timer := time.AfterFunc(delay, func() {
		c.events <- event{kind: evTimeout, timerID: gen}
	})
	c.timerStop = func() { timer.Stop() }
}

func (c *Context) cancelTimer() {
	if c.timerStop != nil {
		c.timerStop()
		c.timerStop = nil
	}
	c.timerGen++ // invalidate any in-flight timer firing
}

func (c *Context) onTimeout() {
	switch c.state {
	case WantEcho, WantRply:
		if c.txCount < c.txLimit {
			// Retransmit at the current backoff, then widen it for the next
			// consecutive timeout (50, 50, 100, 200... ms for the default
			// echo timeout).
			c.setState(WantEcho)
			c.transmit(true)
			c.multiplier = min3(c.multiplier + 1)
		} else {
			c.fail(&ProtocolSendFailed{Msg: "exceeded maximum retries"})
			c.setState(IsInIdle)
			c.checkQueue()
		}
	}
}

func min3(n int) int {
	if n > maxMultiplier {
		return maxMultiplier
	}
	return n
}

func (c *Context) onPacket(pkt frame.Packet) {
	hdr, err := pkt.Header()
	if err != nil {
		return
	}
	addrs, err := pkt.Frame.Addresses()
	if err != nil {
		return
	}

	switch c.state {
	case WantEcho:
		if c.cmd == nil {
			return
		}

		// Reordering tolerance: a reply arriving before its echo (slow local
		// echo) is accepted as a successful completion.
		if c.cmd.HasRxHdr && hdr == c.effRxHeader {
			c.succeed(pkt)
			c.setState(IsInIdle)
			c.checkQueue()
			return
		}

		if hdr == c.effTxHeader {
			c.cancelTimer()
			c.multiplier = max0(c.multiplier - 1)

			waitForReply := c.cmd.HasRxHdr && c.qos.ResolveWaitForReply(c.cmd.HasRxHdr)
			if waitForReply {
				c.setState(WantRply)
				c.armTimer(c.replyTimeout)
			} else {
				c.succeed(pkt)
				c.setState(IsInIdle)
				c.checkQueue()
			}
		}

	case WantRply:
		if c.cmd == nil {
			return
		}
		cmdAddrs, _ := c.cmd.Frame.Addresses()
		if hdr == c.effRxHeader && addrs.Sender == cmdAddrs.Receiver {
			c.cancelTimer()
			c.multiplier = max0(c.multiplier - 1)
			c.succeed(pkt)
			c.setState(IsInIdle)
			c.checkQueue()
		}
		// A late echo (TxHeader match) in WantRply is tolerated: ignored.
	}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (c *Context) onConnectionLost(err error) {
	if c.state == Inactive {
		return
	}
	c.cancelTimer()
	if c.state != IsInIdle {
		c.fail(&TransportError{Msg: "connection lost", Cause: err})
	}
	c.setState(Inactive)
	c.cmd, c.qos, c.resultCh = nil, QosParams{}, nil
}

func (c *Context) succeed(pkt frame.Packet) {
	if c.resultCh != nil {
		c.resultCh <- sendResult{pkt: pkt}
		c.resultCh = nil
	}
}

func (c *Context) fail(err error) {
	if c.resultCh != nil {
		c.resultCh <- sendResult{err: err}
		c.resultCh = nil
	}
}

func (c *Context) setState(s State) {
	c.state = s
	if s == IsInIdle {
		c.cmd, c.qos, c.resultCh = nil, QosParams{}, nil
		c.txCount, c.txLimit = 0, 0
		c.effTxHeader, c.effRxHeader = "", ""
	}
}
