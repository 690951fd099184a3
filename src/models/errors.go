package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline stages.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrParse             = errors.New("parse error")
	ErrDuplicateRecord   = errors.New("duplicate record")
	ErrReconciliation    = errors.New("reconciliation error")
	ErrStoreIntegrity    = errors.New("store integrity error")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrNetwork           = errors.New("network error")
	ErrAuth              = errors.New("authentication error")
	ErrEmptyRange        = errors.New("empty timestamp range")
)

// RowError ties a per-record failure to where the record came from.
type RowError struct {
	Source string
	Line   int
	Err    error
}

func (e *RowError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("%s line %d: %v", e.Source, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
