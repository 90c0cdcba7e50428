package errors

import (
	"errors"
	"fmt"
)

/*
Validation is returned when input is rejected before any write happens,
for example empty memory content or an importance outside [1,10].
*/
type Validation struct {
	Field  string
	Reason string
}

func (err *Validation) Error() string {
	if err.Field == "" {
		return fmt.Sprintf("validation: %s", err.Reason)
	}

	return fmt.Sprintf("validation: %s: %s", err.Field, err.Reason)
}

func NewValidation(field, reason string) *Validation {
	return &Validation{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *Validation
	return errors.As(err, &v)
}

/*
Provider wraps a failure of an outbound embedding or completion call.
These are retried with backoff; once retries are exhausted the claim that
caused the call is skipped and counted, not the whole run.
*/
type Provider struct {
	Provider string
	Op       string
	Err      error
}

func (err *Provider) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", err.Provider, err.Op, err.Err)
}

func (err *Provider) Unwrap() error {
	return err.Err
}

func NewProvider(provider, op string, err error) *Provider {
	return &Provider{Provider: provider, Op: op, Err: err}
}

func IsProvider(err error) bool {
	var p *Provider
	return errors.As(err, &p)
}

/*
Extraction is returned when the claim extractor produces a malformed or
empty result. Unlike a per-claim provider failure it fails the whole run
before any write.
*/
type Extraction struct {
	Reason string
	Err    error
}

func (err *Extraction) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("extraction: %s: %v", err.Reason, err.Err)
	}

	return fmt.Sprintf("extraction: %s", err.Reason)
}

func (err *Extraction) Unwrap() error {
	return err.Err
}

func NewExtraction(reason string, err error) *Extraction {
	return &Extraction{Reason: reason, Err: err}
}

/*
Constraint signals a uniqueness violation in the store, typically two
concurrent first-mentions of the same entity name. Callers retry once as
read-then-link before escalating.
*/
type Constraint struct {
	Table string
	Key   string
	Err   error
}

func (err *Constraint) Error() string {
	return fmt.Sprintf("constraint: %s (%s): %v", err.Table, err.Key, err.Err)
}

func (err *Constraint) Unwrap() error {
	return err.Err
}

func NewConstraint(table, key string, err error) *Constraint {
	return &Constraint{Table: table, Key: key, Err: err}
}

func IsConstraint(err error) bool {
	var c *Constraint
	return errors.As(err, &c)
}

/*
RunFailure marks a consolidation run as failed outright: the extractor
call itself failed, or the per-claim failure fraction exceeded the
configured threshold. Prior successful per-claim writes are kept.
*/
type RunFailure struct {
	RunID  string
	Reason string
	Err    error
}

func (err *RunFailure) Error() string {
	return fmt.Sprintf("run %s failed: %s: %v", err.RunID, err.Reason, err.Err)
}

func (err *RunFailure) Unwrap() error {
	return err.Err
}

func NewRunFailure(runID, reason string, err error) *RunFailure {
	return &RunFailure{RunID: runID, Reason: reason, Err: err}
}

// ErrNotFound is the storewide sentinel for a missing row.
var ErrNotFound = errors.New("not found")
