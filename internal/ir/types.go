package ir

// Event is one committed record of a store's log.
//
// Seq is assigned at commit time, strictly increasing from 1, and never
// reused. ID is content-addressed (see EventID). Events are immutable once
// appended; layers pass them by value.
type Event struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Args      Object `json:"args"`
	SessionID string `json:"session_id"`
}

// Clone returns a copy of the event whose Args share no memory with e.
func (e Event) Clone() Event {
	out := e
	out.Args = e.Args.Clone()
	return out
}

// Canonical returns the canonical JSON object for the event, used for
// checksums and the fs/bolt wire formats.
func (e Event) Canonical() Object {
	args := e.Args
	if args == nil {
		args = Object{}
	}
	return Object{
		"seq":        Int(int64(e.Seq)),
		"id":         String(e.ID),
		"name":       String(e.Name),
		"args":       args,
		"session_id": String(e.SessionID),
	}
}

// FormatVersion is written into every backend so readers can refuse a
// layout they do not understand.
const FormatVersion = 1
