// Package analytics holds the error type shared by the engine boundaries.
// Each engine lives in its own subpackage and builds its feature table
// independently; nothing else is shared between them.
package analytics

import "fmt"

// ErrorKind classifies an engine failure for the adapter layer.
type ErrorKind string

const (
	// KindModelFailure means the model fit or inference failed and no
	// fallback was applicable.
	KindModelFailure ErrorKind = "model_failure"
	// KindInternal means an unexpected, unclassified failure.
	KindInternal ErrorKind = "internal"
)

// EngineError is the structured failure an engine returns when it cannot
// produce a result. Insufficient data is not an error; engines report it as a
// degraded successful response instead.
type EngineError struct {
	Kind   ErrorKind
	Detail string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Internal wraps an unexpected failure.
func Internal(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindInternal, Detail: fmt.Sprintf(format, args...)}
}
