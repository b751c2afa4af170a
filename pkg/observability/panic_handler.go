package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in a background goroutine and logs it with
// the stack. It must be called directly in a defer statement:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "session sweep")
//	    ...
//	}()
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic plus a cleanup hook that only
// runs when a panic was recovered.
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if callback != nil {
			callback()
		}
	}
}

// PanicError turns a recovered value into an error; nil stays nil.
//
//	defer func() { err = observability.PanicError(recover()) }()
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, where string, r interface{}) {
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(r),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("panic recovered")
}
