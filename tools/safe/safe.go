package safe

import (
	"PPDirect/logger"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

// Go starts f on a new goroutine that recovers from panic, so a bad frame
// or event handler never takes the process down.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover logs a recovered panic. Must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("where", name), zap.Error(errs.ErrPanic(r)))
	}
}
