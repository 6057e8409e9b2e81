package validation

import (
	"fmt"
	"strings"
)

const (
	MinWorkers = 1
	MaxWorkers = 20
	MaxLimit   = 1000
)

func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

func ValidatePage(page, limit int) error {
	if page < 1 {
		return fmt.Errorf("page must be a positive integer, got %d", page)
	}
	if limit < 1 || limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d, got %d", MaxLimit, limit)
	}
	return nil
}

func ValidateSortOrder(order string) error {
	switch strings.ToLower(order) {
	case "", "asc", "desc":
		return nil
	}
	return fmt.Errorf("invalid sort order: %s (must be one of: asc, desc)", order)
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ParseKeyValues parses "key=value" pairs. Keys must be non-empty and unique.
func ParseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", p)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate key: %s", key)
		}
		out[key] = value
	}
	return out, nil
}
