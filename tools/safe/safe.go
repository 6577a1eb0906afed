package safe

import (
	"github.com/ivanros02/los4Fantasticos/logger"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics in side-effect paths don't crash the whole relay.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
