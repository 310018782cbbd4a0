// Package result is the success/failure value returned by every user-facing
// mutation. Domain failures are expected outcomes, not Go errors.
package result

import "fmt"

// Result reports whether an operation took effect and a human-readable message.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Ok builds a successful result.
func Ok(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

// Fail builds a failed result.
func Fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}
