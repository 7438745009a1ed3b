package workflow

import (
	"regexp"

	"github.com/google/uuid"
)

// RunID is a unique identifier for one execution of a flattened graph.
type RunID string

// String returns the string representation of the RunID.
func (r RunID) String() string {
	return string(r)
}

// NewRunID generates a new unique RunID.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// validIdentifierRegex matches legal node, workflow, alias, and port names.
// Dots are reserved as path separators in qualified references.
var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidName reports whether name is a legal member or port identifier.
func ValidName(name string) bool {
	return validIdentifierRegex.MatchString(name)
}
