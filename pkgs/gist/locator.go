package gist

import (
	"strings"

	"github.com/pkg/errors"
)

const gistHost = "gist.github.com"

// Normalize expands a raw commitment string into a canonical gist URL.
// Accepted inputs: a full https URL, a scheme-less gist.github.com path, or a
// bare gist identifier. Normalizing an already-canonical locator returns it
// unchanged, so the operation is idempotent.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("empty locator")
	}

	if strings.HasPrefix(trimmed, "https://"+gistHost+"/") {
		return trimmed, nil
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return "", errors.Errorf("not a gist locator: %s", trimmed)
	}
	if strings.HasPrefix(trimmed, gistHost+"/") {
		return "https://" + trimmed, nil
	}
	if strings.ContainsAny(trimmed, "/ ") {
		return "", errors.Errorf("not a gist identifier: %s", trimmed)
	}
	return "https://" + gistHost + "/" + trimmed, nil
}

// ID extracts the gist identifier from a locator in any accepted form.
func ID(locator string) (string, error) {
	canonical, err := Normalize(locator)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.TrimSuffix(canonical, "/"), "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", errors.Errorf("locator has no identifier: %s", locator)
	}
	return id, nil
}
