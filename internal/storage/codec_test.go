package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evstore/internal/ir"
)

func codecEvent(t *testing.T) ir.Event {
	t.Helper()
	args := ir.Object{"draft": ir.String("attempt=A;event=0;")}
	id, err := ir.EventID("uiStateSet", args, 1)
	require.NoError(t, err)
	return ir.Event{Seq: 1, ID: id, Name: "uiStateSet", Args: args, SessionID: "s-1"}
}

func TestRecord_RoundTrip(t *testing.T) {
	ev := codecEvent(t)

	data, err := MarshalRecord(ev)
	require.NoError(t, err)
	assert.False(t, bytes.ContainsRune(data, '\n'), "records are single-line")

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestRecord_DetectsTampering(t *testing.T) {
	data, err := MarshalRecord(codecEvent(t))
	require.NoError(t, err)

	tampered := bytes.Replace(data, []byte("event=0"), []byte("event=9"), 1)
	_, err = UnmarshalRecord(tampered)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestRecord_RejectsMalformed(t *testing.T) {
	for _, in := range []string{
		`{"seq":1,"id":"x","name":"n","args":{"d":"v"}`,
		`{"seq":0,"id":"x","name":"n","args":{},"session_id":"","checksum":""}`,
		`{"seq":1,"id":"x","name":"n","args":[],"session_id":"","checksum":""}`,
		`{"seq":1,"name":"n","args":{},"session_id":"","checksum":""}`,
	} {
		_, err := UnmarshalRecord([]byte(in))
		assert.Error(t, err, in)
	}
}
