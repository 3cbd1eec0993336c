package harvester

import (
	"fmt"

	"github.com/sumiripple/sumiripple/internal/metadata"
	"github.com/sumiripple/sumiripple/pkg/failure"
)

type HarvestErrorCause string

const (
	ErrCauseMalformedHTML HarvestErrorCause = "malformed html"
)

type HarvestError struct {
	Message   string
	Retryable bool
	Cause     HarvestErrorCause
}

func (e *HarvestError) Error() string {
	return fmt.Sprintf("harvest error: %s", e.Cause)
}

func (e *HarvestError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *HarvestError) IsRetryable() bool {
	return e.Retryable
}

// mapHarvestErrorToMetadataCause maps harvester-local error semantics to the
// canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used to derive
// control-flow decisions.
func mapHarvestErrorToMetadataCause(err *HarvestError) metadata.ErrorCause {
	if err == nil {
		return metadata.CauseUnknown
	}
	switch err.Cause {
	case ErrCauseMalformedHTML:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
