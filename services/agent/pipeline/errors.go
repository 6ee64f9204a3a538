// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
)

// =============================================================================
// Failure Taxonomy
// =============================================================================

// The pipeline distinguishes hard failures (the run aborts and the user
// receives a generic apology) from soft failures (recorded on the stage's
// ProcessingStep and absorbed). Hard failures are typed so callers and
// tests can classify them with errors.As; soft failures stay plain
// wrapped errors because nothing branches on their identity.

// ValidationError reports user-correctable bad input. Hard failure.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("input validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AnalysisError reports that intent/urgency extraction did not produce a
// usable result. Hard failure: the safety gate cannot run without an
// urgency signal.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("input analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ReasoningFailure reports that response generation failed. Hard failure:
// there is no safe default answer to substitute.
type ReasoningFailure struct {
	Err error
}

func (e *ReasoningFailure) Error() string {
	return fmt.Sprintf("reasoning generation failed: %v", e.Err)
}

func (e *ReasoningFailure) Unwrap() error { return e.Err }

// IsHardFailure reports whether err belongs to the abort-the-run part of
// the taxonomy.
func IsHardFailure(err error) bool {
	var ve *ValidationError
	var ae *AnalysisError
	var rf *ReasoningFailure
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &rf)
}
