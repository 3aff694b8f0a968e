package report

import (
	"fmt"
	"strings"
)

// MinShortIDLength is the minimum accepted length of a run id prefix.
const MinShortIDLength = 6

// NotFoundError indicates no run matched the id or prefix.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no run found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several runs matched the prefix.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	msg := fmt.Sprintf("ambiguous run id '%s' matches %d runs:\n", e.ShortID, len(e.Matches))

	shown := min(len(e.Matches), 10)
	for _, id := range e.Matches[:shown] {
		msg += fmt.Sprintf("  %s\n", id)
	}
	if len(e.Matches) > shown {
		msg += fmt.Sprintf("  ...and %d more\n", len(e.Matches)-shown)
	}
	return msg + "Use a longer prefix."
}

// ResolveRunID expands a run id prefix, as printed by reports, to the full id.
// A full UUID is returned unchanged.
func ResolveRunID(store Store, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("run id prefix must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := store.RunIDsWithPrefix(shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for run: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}
