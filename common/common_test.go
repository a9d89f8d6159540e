package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionID tests SessionID creation and comparison
func TestSessionID(t *testing.T) {
	// Create two session IDs
	sid1 := NewSessionID()
	sid2 := NewSessionID()

	// They must be distinct
	assert.NotEqual(t, sid1, sid2)
	assert.Equal(t, 0, sid1.Compare(sid1))
	assert.Equal(t, -sid1.Compare(sid2), sid2.Compare(sid1))

	// Text round trip
	text, err := sid1.MarshalText()
	require.NoError(t, err)

	var parsed SessionID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, sid1, parsed)
}

// TestLogicalTimestamp tests ordering and the string round trip
func TestLogicalTimestamp(t *testing.T) {
	sid := NewSessionID()
	t1 := LogicalTimestamp{SID: sid, Counter: 1}
	t2 := t1.Next()

	assert.Equal(t, uint64(2), t2.Counter)
	assert.Equal(t, -1, t1.Compare(t2))
	assert.Equal(t, 1, t2.Compare(t1))
	assert.Equal(t, 0, t1.Compare(t1))

	// Counter dominates the session ID
	other := LogicalTimestamp{SID: NewSessionID(), Counter: 5}
	assert.Equal(t, -1, t1.Compare(other))

	// String round trip through the parser
	parsed, err := ParseTimestamp(t1.String())
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Compare(t1))
	assert.Equal(t, t1.String(), parsed.String())
}

// TestParseTimestampInvalid tests parse failures
func TestParseTimestampInvalid(t *testing.T) {
	for _, input := range []string{"", "no-separator", "not-a-uuid:1", NewSessionID().String() + ":x"} {
		_, err := ParseTimestamp(input)
		assert.Error(t, err, "input %q", input)
		assert.IsType(t, ErrInvalidRevision{}, err)
	}
}

// TestNewestFirst tests the bundled precedence comparator
func TestNewestFirst(t *testing.T) {
	sid := NewSessionID()
	older := LogicalTimestamp{SID: sid, Counter: 1}
	newer := LogicalTimestamp{SID: sid, Counter: 2}

	// The causally later revision sorts first
	assert.Negative(t, NewestFirst(newer, older))
	assert.Positive(t, NewestFirst(older, newer))
	assert.Zero(t, NewestFirst(older, older))
}
