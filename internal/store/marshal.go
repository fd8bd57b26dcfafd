package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corefin/payrun/internal/payroll"
)

// JSON columns use plain encoding/json. Determinism matters for
// checksums and signatures, which are computed over canonical JSON in
// the integrity package before anything reaches the store; the stored
// text only needs to round-trip.

func marshalLines(lines []payroll.Line) (string, error) {
	if lines == nil {
		lines = []payroll.Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("marshal lines: %w", err)
	}
	return string(raw), nil
}

func unmarshalLines(raw string) ([]payroll.Line, error) {
	var lines []payroll.Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	return lines, nil
}

func marshalTotals(t payroll.Totals) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal totals: %w", err)
	}
	return string(raw), nil
}

func unmarshalTotals(raw string) (payroll.Totals, error) {
	var t payroll.Totals
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return t, fmt.Errorf("unmarshal totals: %w", err)
	}
	return t, nil
}

func marshalProviders(p payroll.Providers) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal providers: %w", err)
	}
	return string(raw), nil
}

func unmarshalProviders(raw string) (payroll.Providers, error) {
	var p payroll.Providers
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("unmarshal providers: %w", err)
	}
	return p, nil
}

func marshalDetails(d map[string]any) (string, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(raw), nil
}

func unmarshalDetails(raw string, out *map[string]any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal details: %w", err)
	}
	return nil
}

// Timestamps are stored as RFC 3339 text; SQLite has no native time
// type and text sorts correctly for this format.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
