package ld2412

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// Event is a value delivered to engine subscribers in decode order:
// *Measurement, *CommandReply, *CommandTimeout, or *DecodeError.
type Event interface {
	event()
}

func (*Measurement) event()    {}
func (*CommandReply) event()   {}
func (*CommandTimeout) event() {}
func (*DecodeError) event()    {}

// Config tunes an Engine. The zero value selects the defaults below.
type Config struct {
	// Clock drives deadlines and the periodic tick; defaults to the
	// real clock.
	Clock timeutil.Clock

	// CommandTimeout bounds the wait for a command reply.
	CommandTimeout time.Duration

	// BufferCeiling caps the stream buffer.
	BufferCeiling int

	// QueueDepth is the chunk queue capacity between the reader and the
	// processing loop.
	QueueDepth int

	// MaxFramesPerCycle caps the frames decoded per wake-up so the
	// processing loop never starves other work on its scheduler.
	MaxFramesPerCycle int

	// IOErrorThreshold is the number of consecutive ByteSource failures
	// after which OnIOError instructs the caller to disconnect.
	IOErrorThreshold int

	// TickInterval drives command-timeout checks and residual frame
	// draining.
	TickInterval time.Duration

	// Transmit writes an encoded command frame to the device. Required
	// for Send.
	Transmit func([]byte) error
}

const (
	defaultQueueDepth        = 64
	defaultMaxFramesPerCycle = 8
	defaultIOErrorThreshold  = 5
	defaultTickInterval      = 100 * time.Millisecond
)

// Engine owns the stream buffer, scanner, decoder, correlator and
// aggregator, and runs the processing loop that connects them. Raw bytes
// enter through Feed (called from the reader goroutine); typed events
// leave through subscriber channels, strictly in decode order.
type Engine struct {
	clock    timeutil.Clock
	queue    chan []byte
	buffer   *StreamBuffer
	scanner  Scanner
	corr     *Correlator
	agg      *Aggregator
	transmit func([]byte) error

	maxFramesPerCycle int
	ioErrorThreshold  int
	tickInterval      time.Duration

	subscriberMu sync.Mutex
	subscribers  map[string]chan Event
	closed       bool

	droppedChunks *monitoring.Counter
	decodeErrors  *monitoring.Counter
	ioErrors      atomic.Int64
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.MaxFramesPerCycle <= 0 {
		cfg.MaxFramesPerCycle = defaultMaxFramesPerCycle
	}
	if cfg.IOErrorThreshold <= 0 {
		cfg.IOErrorThreshold = defaultIOErrorThreshold
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}

	return &Engine{
		clock:             cfg.Clock,
		queue:             make(chan []byte, cfg.QueueDepth),
		buffer:            NewStreamBuffer(cfg.BufferCeiling),
		corr:              NewCorrelator(cfg.Clock, cfg.CommandTimeout),
		agg:               NewAggregator(),
		transmit:          cfg.Transmit,
		maxFramesPerCycle: cfg.MaxFramesPerCycle,
		ioErrorThreshold:  cfg.IOErrorThreshold,
		tickInterval:      cfg.TickInterval,
		subscribers:       make(map[string]chan Event),
		droppedChunks:     monitoring.NewCounter("ld2412_dropped_chunks"),
		decodeErrors:      monitoring.NewCounter("ld2412_decode_errors"),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving decoded events. Slow subscribers
// miss events rather than stall the processing loop.
func (e *Engine) Subscribe() (string, <-chan Event) {
	id := randomID()
	ch := make(chan Event, 16)
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	if e.closed {
		close(ch)
		return id, ch
	}
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (e *Engine) Unsubscribe(id string) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

func (e *Engine) publish(ev Event) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber; do not block the processing loop
		}
	}
}

// Feed enqueues a chunk of raw bytes from the reader. It never blocks:
// when the queue is full the oldest chunk is dropped, which the stream
// buffer's lossy trim policy already makes recoverable. A successful read
// also clears the consecutive IO error count.
func (e *Engine) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	e.ioErrors.Store(0)
	chunk := append([]byte(nil), p...)
	for {
		select {
		case e.queue <- chunk:
			return
		default:
		}
		select {
		case <-e.queue:
			e.droppedChunks.Add(1)
		default:
		}
	}
}

// OnIOError records a ByteSource failure and reports whether the caller
// should disconnect. The engine never reconnects on its own.
func (e *Engine) OnIOError(err error) (disconnect bool) {
	n := e.ioErrors.Add(1)
	monitoring.Logf("ld2412: serial read error (%d consecutive): %v", n, err)
	return n >= int64(e.ioErrorThreshold)
}

// Send encodes and transmits a command. It fails with ErrAlreadyWaiting
// while a reply is outstanding and with ErrClosed after shutdown; a
// transmit failure releases the slot so the caller can retry.
func (e *Engine) Send(code CommandCode, payload []byte) error {
	if e.transmit == nil {
		return ErrNoTransmitter
	}
	e.subscriberMu.Lock()
	closed := e.closed
	e.subscriberMu.Unlock()
	if closed {
		return ErrClosed
	}
	frame, err := e.corr.Send(code, payload)
	if err != nil {
		return err
	}
	if err := e.transmit(frame); err != nil {
		e.corr.CancelPending()
		return err
	}
	return nil
}

// Run drains the chunk queue and the tick channel until ctx is cancelled.
// Bytes are processed strictly in arrival order and frames decoded in the
// order their start markers are consumed; nothing is decoded in parallel.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case chunk := <-e.queue:
			e.buffer.Append(chunk)
			e.drainFrames()

		case now := <-ticker.C():
			if to := e.corr.Tick(now); to != nil {
				monitoring.Logf("ld2412: command %s timed out", to.Code)
				e.publish(to)
			}
			// catch frames beyond the per-cycle cap of earlier wake-ups
			e.drainFrames()
		}
	}
}

// drainFrames scans and decodes at most maxFramesPerCycle frames from the
// buffer. Scanner misses leave the buffer untouched: more bytes needed.
func (e *Engine) drainFrames() {
	for i := 0; i < e.maxFramesPerCycle; i++ {
		frame, ok := e.scanner.Scan(e.buffer.Bytes())
		if !ok {
			return
		}
		// Trimming consumes everything before the chosen frame, so a
		// complete reply interleaved ahead of a data frame must be
		// decoded first or it is lost with the trimmed prefix.
		for frame.Start > 0 {
			pre, ok := e.scanner.Scan(e.buffer.Bytes()[:frame.Start])
			if !ok {
				break
			}
			frame = pre
		}
		measurement, reply, err := Decode(frame, e.clock.Now())
		e.buffer.TrimConsumed(frame.End)
		if err != nil {
			e.decodeErrors.Add(1)
			monitoring.Logf("ld2412: %v", err)
			if de, ok := err.(*DecodeError); ok {
				e.publish(de)
			}
			continue
		}
		switch {
		case measurement != nil:
			e.agg.Observe(measurement)
			e.publish(measurement)
		case reply != nil:
			e.corr.OnReply(reply)
			e.publish(reply)
		}
	}
}

// shutdown closes subscribers and resets stream and correlator state. A
// pending command cleared here is not a timeout: no command outlives a
// disconnect.
func (e *Engine) shutdown() {
	// drain and discard queued chunks
	for {
		select {
		case <-e.queue:
		default:
			goto drained
		}
	}
drained:
	e.buffer.Reset()
	e.corr.Reset()

	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	e.closed = true
	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}
}

// Stats returns the aggregator snapshot.
func (e *Engine) Stats() Statistics {
	return e.agg.Snapshot()
}

// ClearStats resets the aggregator.
func (e *Engine) ClearStats() {
	e.agg.Clear()
}

// SessionInfo is a point-in-time view of session and error-counter state
// for the API layer.
type SessionInfo struct {
	ConfigMode          bool   `json:"config_mode"`
	CommandWaiting      bool   `json:"command_waiting"`
	DroppedChunks       uint64 `json:"dropped_chunks"`
	DroppedBytes        uint64 `json:"dropped_bytes"`
	ValidationFailures  uint64 `json:"validation_failures"`
	DecodeErrors        uint64 `json:"decode_errors"`
	ConsecutiveIOErrors int64  `json:"consecutive_io_errors"`
}

// Session returns the current session info.
func (e *Engine) Session() SessionInfo {
	return SessionInfo{
		ConfigMode:          e.corr.Session().ConfigMode,
		CommandWaiting:      e.corr.Waiting(),
		DroppedChunks:       e.droppedChunks.Value(),
		DroppedBytes:        e.buffer.Dropped(),
		ValidationFailures:  e.scanner.ValidationFailures(),
		DecodeErrors:        e.decodeErrors.Value(),
		ConsecutiveIOErrors: e.ioErrors.Load(),
	}
}
