package testutil

// DefaultSessionID is used when NewFixedSessionGenerator gets an empty ID.
const DefaultSessionID = "test-session-00000000-0000-0000-0000-000000000001"

// FixedSessionGenerator generates the same session ID every time, so two runs
// of a scenario produce byte-identical event logs.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator returning id, or
// DefaultSessionID when id is empty.
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = DefaultSessionID
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session ID.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
