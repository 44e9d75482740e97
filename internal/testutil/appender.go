package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/evstore/internal/ir"
)

// ScriptedAppender assigns seqs in call order and holds every completion
// until the test calls Complete or Fail.
//
// Thread-safety: all methods are safe for concurrent use. Completions run on
// the goroutine that calls Complete or Fail.
type ScriptedAppender struct {
	mu        sync.Mutex
	seq       uint64
	waiting   map[uint64]scripted
	appendErr error
}

type scripted struct {
	event  ir.Event
	onDone func(ir.Event, error)
}

// NewScriptedAppender creates an appender whose first seq is start+1.
func NewScriptedAppender(start uint64) *ScriptedAppender {
	return &ScriptedAppender{seq: start, waiting: make(map[uint64]scripted)}
}

// Append implements pipeline.Appender.
func (a *ScriptedAppender) Append(name string, args ir.Object, onDone func(ir.Event, error)) (ir.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.appendErr != nil {
		return ir.Event{}, a.appendErr
	}
	a.seq++
	ev := NewEvent(a.seq, name, args.Clone())
	a.waiting[ev.Seq] = scripted{event: ev, onDone: onDone}
	return ev, nil
}

// FailAppends makes every later Append return err synchronously.
func (a *ScriptedAppender) FailAppends(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendErr = err
}

// Outstanding returns the seqs appended but not yet completed, ascending.
func (a *ScriptedAppender) Outstanding() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	seqs := make([]uint64, 0, len(a.waiting))
	for seq := uint64(1); seq <= a.seq; seq++ {
		if _, ok := a.waiting[seq]; ok {
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

// Complete marks seq durable.
func (a *ScriptedAppender) Complete(seq uint64) {
	a.resolve(seq, nil)
}

// Fail marks seq failed with err.
func (a *ScriptedAppender) Fail(seq uint64, err error) {
	a.resolve(seq, err)
}

// CompleteInOrder completes seqs in the order given.
func (a *ScriptedAppender) CompleteInOrder(seqs ...uint64) {
	for _, seq := range seqs {
		a.Complete(seq)
	}
}

func (a *ScriptedAppender) resolve(seq uint64, err error) {
	a.mu.Lock()
	s, ok := a.waiting[seq]
	delete(a.waiting, seq)
	a.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("ScriptedAppender: seq %d is not outstanding", seq))
	}
	s.onDone(s.event, err)
}
