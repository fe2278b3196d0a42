package source

import (
	"errors"
	"fmt"

	"ecommerce-analytics-pipeline/internal/model"
)

// Sentinel kinds for extraction failures. SourceError matches them with
// errors.Is.
var (
	ErrNotFound = errors.New("source not found")
	ErrParse    = errors.New("source parse error")
	ErrIO       = errors.New("source io error")
)

// SourceError reports why a kind could not be extracted.
type SourceError struct {
	Kind     error
	Record   model.RecordKind
	Location string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Record, e.Location)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Record, e.Location, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newSourceError(kind error, rec model.RecordKind, location string, err error) *SourceError {
	return &SourceError{Kind: kind, Record: rec, Location: location, Err: err}
}

// ValidationError explains why one raw record was dropped.
type ValidationError struct {
	Kind     model.RecordKind
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("invalid %s record %s: %s %s", e.Kind, id, e.Field, e.Reason)
}
