package goroutine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecover(t *testing.T) {
	var seen []interface{}
	ev := Recover(func() {
		panic("timer")
	}, func(ev *PanicEvent) {
		seen = append(seen, ev.Panic)
	})
	assert.NotNil(t, ev)
	assert.Equal(t, "timer", ev.Panic)
	assert.NotEmpty(t, ev.Stack)
	assert.Equal(t, []interface{}{"timer"}, seen)

	assert.Nil(t, Recover(func() {}, func(*PanicEvent) { t.Fatal("handler called without panic") }))
}
