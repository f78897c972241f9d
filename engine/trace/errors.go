package trace

import (
	"errors"
	"fmt"
	"math"
)

// ErrMissingData matches every *MissingDataError via errors.Is.
var ErrMissingData = errors.New("missing data")

// MissingDataError reports a correlation key with no matching record.
type MissingDataError struct {
	Kind string
	ID   int64
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.ID, ErrMissingData)
}

// Is lets errors.Is(err, ErrMissingData) match.
func (e *MissingDataError) Is(target error) bool {
	return target == ErrMissingData
}

// ConfigError is returned by every threshold Validate method.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RequireNonNegative rejects NaN, infinite and negative thresholds.
func RequireNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must be a finite non-negative number, got %v", v)}
	}
	return nil
}

// RequirePositiveInt rejects zero and negative counts.
func RequirePositiveInt(field string, v int) error {
	if v <= 0 {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must be > 0, got %d", v)}
	}
	return nil
}

// WarningKind classifies a non-fatal data problem.
type WarningKind string

const (
	WarnMalformedRecord WarningKind = "malformed_record"
	WarnOverlap         WarningKind = "overlap"
	WarnMissingColumn   WarningKind = "missing_column"
	WarnCorrelation     WarningKind = "correlation"
)

// Warning is a data problem that excluded or degraded a record without
// aborting the run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Source  string      `json:"source"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Source, w.Message)
}

// Warnings accumulates Warning values in the order they were raised.
type Warnings []Warning

// Add appends a formatted warning.
func (ws *Warnings) Add(kind WarningKind, source, format string, args ...any) {
	*ws = append(*ws, Warning{Kind: kind, Source: source, Message: fmt.Sprintf(format, args...)})
}

// Count returns the number of warnings of the given kind.
func (ws Warnings) Count(kind WarningKind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
