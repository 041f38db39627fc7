// Package retrieval orchestrates the query pipeline: embed the query,
// search the vector store, refine the candidates, and pack them into a
// context budget. It also owns document ingestion.
package retrieval

import "fmt"

// ValidationError marks bad input shape. Terminal; the same call will
// never succeed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DegradedError is returned in strict mode when a refinement stage failed.
// Outside strict mode the stage is skipped and the pipeline continues.
type DegradedError struct {
	Stage string
	Err   error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("retrieval degraded at %s stage: %v", e.Stage, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }
