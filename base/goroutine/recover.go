// Package goroutine keeps panics in background work from killing the process.
package goroutine

import (
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/utils"
)

// frames of recover machinery above the panicking function
const stackSkip = 4

// PanicEvent is a recovered panic with the stack it was raised on
type PanicEvent struct {
	Panic interface{}
	Stack []byte
}

// OnPanic runs after a recovered panic has been logged
type OnPanic func(*PanicEvent)

// Recover runs f on the calling goroutine. A panic in f is logged with its
// stack, passed to every handler, and returned. Nil means f returned normally.
func Recover(f func(), handlers ...OnPanic) (ev *PanicEvent) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		ev = &PanicEvent{Panic: p, Stack: utils.Stack(stackSkip)}
		log.Log().WithFields(log.Fields{
			"err":   p,
			"stack": string(ev.Stack),
		}).Error("panic recovered")
		for _, h := range handlers {
			h(ev)
		}
	}()

	f()
	return nil
}
