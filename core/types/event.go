package types

// Event is the canonical payload appended to the audit stream for every
// escrow state transition. Attributes are flat string pairs so external
// consumers can mirror them without knowing the engine's internal types.
type Event struct {
	Type       string
	Attributes map[string]string
}
