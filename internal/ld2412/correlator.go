package ld2412

import (
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/timeutil"
)

// DefaultCommandTimeout matches the device's observed reply latency with
// headroom.
const DefaultCommandTimeout = time.Second

// PendingCommand is the single in-flight request slot.
type PendingCommand struct {
	Code     CommandCode
	SentAt   time.Time
	Deadline time.Time
}

// CommandTimeout is surfaced exactly once when the pending command's
// deadline passes without a matching reply.
type CommandTimeout struct {
	Code   CommandCode
	SentAt time.Time
}

// SessionState is the device session state for one connection, owned and
// mutated only by the Correlator.
type SessionState struct {
	ConfigMode bool `json:"config_mode"`
}

// Correlator owns the in-flight request slot and the session config-mode
// flag. It matches inbound replies to the outstanding request by the fixed
// request-to-reply code offset, and expires the slot on a deadline. It does
// not retry; retry policy belongs to the caller.
type Correlator struct {
	clock   timeutil.Clock
	timeout time.Duration

	mu      sync.Mutex
	pending *PendingCommand
	session SessionState
}

// NewCorrelator returns a correlator using the given clock. A zero timeout
// selects DefaultCommandTimeout.
func NewCorrelator(clock timeutil.Clock, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Correlator{clock: clock, timeout: timeout}
}

// Send records code as the in-flight command and returns the frame bytes to
// transmit. It fails with ErrAlreadyWaiting while an unexpired command is
// outstanding. Config-mode transitions for the enter/exit codes are applied
// here, optimistically: the device acks these near-instantly and the
// original behaviour favours responsiveness over strict confirmation.
func (c *Correlator) Send(code CommandCode, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.pending != nil && now.Before(c.pending.Deadline) {
		return nil, ErrAlreadyWaiting
	}

	c.pending = &PendingCommand{
		Code:     code,
		SentAt:   now,
		Deadline: now.Add(c.timeout),
	}

	switch code {
	case CmdEnterConfigMode:
		c.session.ConfigMode = true
	case CmdExitConfigMode, CmdRestart, CmdFactoryReset:
		c.session.ConfigMode = false
	}

	return EncodeCommand(code, payload), nil
}

// OnReply matches r against the outstanding request. A reply whose code is
// the pending code plus the reply offset clears the slot; an unrelated or
// stale reply is reported to the caller but must not swallow the real one,
// so the slot is left intact. The return reports whether r matched.
func (c *Correlator) OnReply(r *CommandReply) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || r.Code != c.pending.Code.Reply() {
		return false
	}
	c.pending = nil
	return true
}

// Tick expires the pending command when now is past its deadline,
// returning the timeout event to surface. At most one timeout is produced
// per command.
func (c *Correlator) Tick(now time.Time) *CommandTimeout {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || !now.After(c.pending.Deadline) {
		return nil
	}
	to := &CommandTimeout{Code: c.pending.Code, SentAt: c.pending.SentAt}
	c.pending = nil
	return to
}

// CancelPending releases the pending slot without producing a timeout,
// for when the encoded frame never reached the device.
func (c *Correlator) CancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// Waiting reports whether a command is outstanding.
func (c *Correlator) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Session returns a copy of the session state.
func (c *Correlator) Session() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Reset clears the pending slot and session state on disconnect. The
// cleared command is not treated as a timeout: no command outlives a
// disconnect.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.session = SessionState{}
}
