package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Stable(t *testing.T) {
	args := Object{"draft": String("x")}
	id1, err := EventID("uiStateSet", args, 1)
	require.NoError(t, err)
	id2, err := EventID("uiStateSet", args.Clone(), 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestEventID_DependsOnSeqNameArgs(t *testing.T) {
	base, err := EventID("uiStateSet", Object{"draft": String("x")}, 1)
	require.NoError(t, err)

	otherSeq, _ := EventID("uiStateSet", Object{"draft": String("x")}, 2)
	otherName, _ := EventID("uiStateReset", Object{"draft": String("x")}, 1)
	otherArgs, _ := EventID("uiStateSet", Object{"draft": String("y")}, 1)

	assert.NotEqual(t, base, otherSeq)
	assert.NotEqual(t, base, otherName)
	assert.NotEqual(t, base, otherArgs)
}

func TestEventID_NilArgsEqualsEmpty(t *testing.T) {
	a, err := EventID("uiStateReset", nil, 3)
	require.NoError(t, err)
	b, err := EventID("uiStateReset", Object{}, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecordChecksum_CoversSession(t *testing.T) {
	ev := Event{Seq: 1, ID: "id", Name: "uiStateSet", Args: Object{}, SessionID: "s1"}
	a, err := RecordChecksum(ev)
	require.NoError(t, err)

	ev.SessionID = "s2"
	b, err := RecordChecksum(ev)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDocumentHash(t *testing.T) {
	a, err := DocumentHash(Object{"draft": String("x")})
	require.NoError(t, err)
	b, err := DocumentHash(Object{"draft": String("x")})
	require.NoError(t, err)
	c, err := DocumentHash(nil)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
