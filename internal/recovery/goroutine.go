package recovery

import (
	"runtime/debug"

	"github.com/vanpelt/codexlens/internal/logger"
)

// SafeGo runs fn in a goroutine, logging instead of crashing on panic
func SafeGo(name string, fn func()) {
	go Run(name, fn)
}

// Run calls fn and recovers a panic, reporting whether fn completed
func Run(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error().
				Str("goroutine", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered")
			ok = false
		}
	}()
	fn()
	return true
}
