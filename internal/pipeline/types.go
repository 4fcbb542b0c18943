package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MessageOK is returned on every successful invocation.
	MessageOK = "Summary and key discussions generated successfully"
	// MessageMissingInput is the validation error message for an incomplete request.
	MessageMissingInput = "Missing bucket_name or object_key in input"
)

// Metadata write outcomes reported in Result.MetadataStatus.
const (
	MetadataWritten = "written"
	MetadataSkipped = "skipped"
)

// Request is one invocation: the transcript's location.
type Request struct {
	BucketName string `json:"bucket_name"`
	ObjectKey  string `json:"object_key"`
}

// Validate reports a *ValidationError when either field is blank.
func (r Request) Validate() error {
	if strings.TrimSpace(r.BucketName) == "" || strings.TrimSpace(r.ObjectKey) == "" {
		return &ValidationError{Message: MessageMissingInput}
	}
	return nil
}

// Result is the invocation output. BucketName and ObjectKey point at the written summary.
type Result struct {
	RunID          string `json:"run_id"`
	BucketName     string `json:"bucket_name"`
	ObjectKey      string `json:"object_key"`
	MetadataKey    string `json:"metadata_key,omitempty"`
	MetadataStatus string `json:"metadata_status"`
	Guardrail      string `json:"guardrail"`
	Message        string `json:"message"`
}

// ValidationError is returned before any external call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil || e.Message == "" {
		return "invalid request"
	}
	return e.Message
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StageError is a fatal storage or inference failure, tagged with the stage that failed.
// Writes that already happened are not rolled back.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "pipeline stage failed"
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Stage names used in StageError.
const (
	StageFetch         = "fetch"
	StageSummarize     = "summarize"
	StageWriteSummary  = "write_summary"
	StageExtract       = "extract_metadata"
	StageWriteMetadata = "write_metadata"
)
