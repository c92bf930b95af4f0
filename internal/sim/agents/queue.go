package agents

import (
	"errors"

	"factoryverse.ai/internal/protocol"
)

var ErrQueueFull = errors.New("action queue full")

// Intent is a pending asynchronous action invocation.
type Intent struct {
	CallID       string
	AgentID      uint64
	Action       string
	Params       Params
	ActionID     uint64
	AcceptedTick uint64

	// Reply delivers the acknowledgement once the intent is dispatched.
	// May be nil.
	Reply func(protocol.AckMsg)
}

// ActionQueue is the bounded FIFO intake for asynchronous action requests.
// Enqueue never blocks; Drain dispatches at most maxN intents per call so a
// burst of requests cannot stall a tick.
type ActionQueue struct {
	buf []Intent
	max int
}

func NewActionQueue(max int) *ActionQueue {
	if max <= 0 {
		max = 256
	}
	return &ActionQueue{max: max}
}

func (q *ActionQueue) Len() int { return len(q.buf) }

func (q *ActionQueue) Enqueue(in Intent) error {
	if len(q.buf) >= q.max {
		return ErrQueueFull
	}
	q.buf = append(q.buf, in)
	return nil
}

// Drain pops and dispatches at most maxN intents in FIFO order. A failing
// dispatch is isolated to its intent; the rest of the batch still runs.
func (q *ActionQueue) Drain(maxN int, dispatch func(Intent)) int {
	n := maxN
	if n > len(q.buf) {
		n = len(q.buf)
	}
	if n <= 0 {
		return 0
	}
	batch := make([]Intent, n)
	copy(batch, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	for _, in := range batch {
		dispatch(in)
	}
	return n
}
