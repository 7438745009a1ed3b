// Package validation guards file-system destinations derived from
// user-provided naming templates. Routed artifact paths are validated to stay
// within the sink's base directory, preventing traversal via "..", absolute
// paths, or hostile template values.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DestinationValidator validates relative destination paths against a fixed
// base directory. Safe for concurrent use.
type DestinationValidator struct {
	base string
}

// NewDestinationValidator creates a validator rooted at baseDir. The base is
// made absolute immediately so later validations are independent of the
// process working directory.
func NewDestinationValidator(baseDir string) (*DestinationValidator, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve base directory: %w", err)
	}
	return &DestinationValidator{base: abs}, nil
}

// Base returns the absolute base directory.
func (v *DestinationValidator) Base() string {
	return v.base
}

// Validate checks that rel is a local path and returns the absolute
// destination inside the base directory. The destination need not exist yet.
func (v *DestinationValidator) Validate(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("destination path cannot be empty")
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("destination %q escapes the sink base directory", rel)
	}

	full := filepath.Join(v.base, filepath.Clean(rel))

	// Containment check after cleaning; Join can collapse components.
	relBack, err := filepath.Rel(v.base, full)
	if err != nil || relBack == ".." || strings.HasPrefix(relBack, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %q escapes the sink base directory", rel)
	}
	return full, nil
}
