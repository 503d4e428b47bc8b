package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrActiveChanged is returned when a promotion raced with another one.
	ErrActiveChanged = errors.New("active model changed")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a malformed signal at creation. It is never stored.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Add(field, msg string) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) Empty() bool { return len(e.Problems) == 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+" "+p.Message)
	}
	return "invalid signal: " + strings.Join(parts, "; ")
}

type DuplicateSignalError struct {
	ID string
}

func (e *DuplicateSignalError) Error() string {
	return fmt.Sprintf("signal %s already exists", e.ID)
}

// InvalidTransitionError means the signal was no longer pending when a transition was attempted.
type InvalidTransitionError struct {
	ID      string
	Current State
	To      State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("signal %s: cannot transition %s -> %s", e.ID, e.Current, e.To)
}

type DataUnavailableError struct {
	Instrument string
	Err        error
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Instrument, ErrDataUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Instrument, ErrDataUnavailable, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

// TrainingError is a failed retrain attempt. The active model is unaffected.
type TrainingError struct {
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err == nil {
		return "training failed: " + e.Reason
	}
	return fmt.Sprintf("training failed: %s: %v", e.Reason, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// ValidationFailure is informational: the candidate was kept but not promoted.
type ValidationFailure struct {
	VersionID int64
	Metric    float64
	Required  float64
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("candidate v%d not promoted: metric %.4f does not exceed %.4f", e.VersionID, e.Metric, e.Required)
}
