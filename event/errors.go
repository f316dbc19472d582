// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"errors"
	"fmt"
)

// Sentinel causes for FatalError: replay mismatch and invariant violation.
// Both abort the run; nothing else does.
var (
	ErrMissingSequence  = errors.New("event: replay log is missing the next expected sequence number")
	ErrTypeTagMismatch  = errors.New("event: replay log entry's type tag does not match the event being replayed")
	ErrInvariantBroken  = errors.New("event: invariant violation")
	ErrSystemClosed     = errors.New("event: system is closed")
	ErrUnknownMediator  = errors.New("event: no mediator registered under that name")
	ErrDuplicateMediator = errors.New("event: a mediator is already registered under that name")
)

// FatalError wraps a cause that must abort the run rather than be logged
// and dropped. EventSystem.Run returns a *FatalError when the dispatch
// loop cannot continue.
type FatalError struct {
	Cause error
	Seq   uint64
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("event: fatal error at sequence %d: %v", e.Seq, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
