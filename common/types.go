package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SessionID represents a unique identifier for an editing session (one
// replica of a document). It is implemented as a UUID v7 which provides
// time-ordered values.
type SessionID uuid.UUID

// NilSessionID is the zero value for SessionID.
var NilSessionID SessionID

// NewSessionID creates a new SessionID using UUID v7.
// It panics if the UUID cannot be created.
func NewSessionID() SessionID {
	const retry = 3

	var lastErr error
	for i := 0; i < retry; i++ {
		id, err := uuid.NewV7()
		if err == nil {
			return SessionID(id)
		}
		lastErr = err
	}

	panic(lastErr)
}

// String returns the string representation of the SessionID.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// Compare compares two SessionIDs lexicographically.
// Returns:
//
//	-1 if s < other
//	 0 if s == other
//	 1 if s > other
func (s SessionID) Compare(other SessionID) int {
	for i := 0; i < len(uuid.UUID(s)); i++ {
		if uuid.UUID(s)[i] < uuid.UUID(other)[i] {
			return -1
		}
		if uuid.UUID(s)[i] > uuid.UUID(other)[i] {
			return 1
		}
	}
	return 0
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(s).String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *SessionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	*s = SessionID(u)
	return nil
}

// Revision identifies the source of an edit: one changeset's worth of
// operations all carry the same revision. A revision has a stable string
// form and a total order; both must be consistent across replicas or
// convergence is lost.
type Revision interface {
	// String returns the stable string representation of the revision.
	// It is used as the serialized form and as a secondary sort key.
	String() string

	// Compare compares two revisions.
	// Returns:
	//
	//	-1 if r < other
	//	 0 if r == other
	//	 1 if r > other
	Compare(other Revision) int
}

// RevisionComparator defines the sibling precedence order used by RGA
// traversal: siblings sort ascending by the comparator, so a smaller
// revision sorts closer to its anchor.
type RevisionComparator func(a, b Revision) int

// RevisionParser turns the string form of a revision back into a
// revision value. It is required when decoding serialized documents and
// changesets.
type RevisionParser func(s string) (Revision, error)

// NewestFirst is the bundled precedence comparator: the causally later
// revision sorts first, so concurrent edits land closer to their anchor
// than the anchor's older continuation.
func NewestFirst(a, b Revision) int {
	return b.Compare(a)
}

// LogicalTimestamp is the bundled Revision implementation: a session ID
// plus a sequence counter, totally ordered by counter then session.
type LogicalTimestamp struct {
	SID     SessionID `json:"sid"`
	Counter uint64    `json:"cnt"`
}

// Compare compares two logical timestamps: counter first (causal
// order), session ID as the tie-break between concurrent revisions.
func (t LogicalTimestamp) Compare(other Revision) int {
	o, ok := other.(LogicalTimestamp)
	if !ok {
		return strings.Compare(t.String(), other.String())
	}
	if t.Counter < o.Counter {
		return -1
	}
	if t.Counter > o.Counter {
		return 1
	}
	return t.SID.Compare(o.SID)
}

// Next returns the next logical timestamp in the sequence.
func (t LogicalTimestamp) Next() LogicalTimestamp {
	return LogicalTimestamp{
		SID:     t.SID,
		Counter: t.Counter + 1,
	}
}

// String returns the serialized form of the timestamp, "<sid>:<counter>".
func (t LogicalTimestamp) String() string {
	return t.SID.String() + ":" + strconv.FormatUint(t.Counter, 10)
}

// ParseTimestamp parses the string form produced by String. It is the
// RevisionParser for documents whose revisions are LogicalTimestamps.
func ParseTimestamp(s string) (Revision, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return nil, ErrInvalidRevision{Value: s}
	}

	var sid SessionID
	if err := sid.UnmarshalText([]byte(s[:i])); err != nil {
		return nil, ErrInvalidRevision{Value: s}
	}

	counter, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return nil, ErrInvalidRevision{Value: s}
	}

	return LogicalTimestamp{SID: sid, Counter: counter}, nil
}
