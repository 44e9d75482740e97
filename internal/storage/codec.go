package storage

import (
	"fmt"

	"github.com/roach88/evstore/internal/ir"
)

// MarshalRecord encodes an event as one canonical JSON object carrying a
// checksum over the rest of the fields. File-based backends store this form.
func MarshalRecord(ev ir.Event) ([]byte, error) {
	sum, err := ir.RecordChecksum(ev)
	if err != nil {
		return nil, err
	}
	obj := ev.Canonical()
	obj["checksum"] = ir.String(sum)
	return ir.MarshalCanonical(obj)
}

// UnmarshalRecord decodes a MarshalRecord payload and verifies its checksum.
func UnmarshalRecord(data []byte) (ir.Event, error) {
	obj, err := ir.ParseObject(data)
	if err != nil {
		return ir.Event{}, fmt.Errorf("decode record: %w", err)
	}

	seq, ok := obj["seq"].(ir.Int)
	if !ok || seq <= 0 {
		return ir.Event{}, fmt.Errorf("decode record: missing or invalid seq")
	}
	args, ok := obj["args"].(ir.Object)
	if !ok {
		return ir.Event{}, fmt.Errorf("decode record %d: args is not an object", seq)
	}

	ev := ir.Event{
		Seq:       uint64(seq),
		ID:        obj.Str("id"),
		Name:      obj.Str("name"),
		Args:      args,
		SessionID: obj.Str("session_id"),
	}
	if ev.ID == "" || ev.Name == "" {
		return ir.Event{}, fmt.Errorf("decode record %d: missing id or name", seq)
	}

	want, err := ir.RecordChecksum(ev)
	if err != nil {
		return ir.Event{}, err
	}
	if got := obj.Str("checksum"); got != want {
		return ir.Event{}, fmt.Errorf("decode record %d: checksum mismatch", seq)
	}
	return ev, nil
}
