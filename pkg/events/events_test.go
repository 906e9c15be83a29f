package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitOrder(t *testing.T) {
	em := NewEmitter()
	var got []int
	em.On("x", func(args ...any) { got = append(got, 1) })
	em.On("x", func(args ...any) { got = append(got, 2) })
	em.On("x", func(args ...any) { got = append(got, 3) })
	em.Emit("x")
	assert.Equal(t, []int{1, 2, 3}, got, "registration order preserved")
}

func TestEmitArgs(t *testing.T) {
	em := NewEmitter()
	var name string
	em.On("port", func(args ...any) {
		name, _ = args[0].(string)
	})
	em.Emit("port", "s1-eth1")
	assert.Equal(t, "s1-eth1", name)
}

func TestRemoveListener(t *testing.T) {
	em := NewEmitter()
	n := 0
	remove := em.On("x", func(args ...any) { n++ })
	em.Emit("x")
	remove()
	em.Emit("x")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, em.ListenerCount("x"))
}

func TestOnce(t *testing.T) {
	em := NewEmitter()
	n := 0
	em.Once("x", func(args ...any) { n++ })
	em.Emit("x")
	em.Emit("x")
	assert.Equal(t, 1, n)
}

func TestPanickingListenerDoesNotAbortEmit(t *testing.T) {
	em := NewEmitter()
	var got []int
	em.On("x", func(args ...any) { got = append(got, 1) })
	em.On("x", func(args ...any) { panic("boom") })
	em.On("x", func(args ...any) { got = append(got, 3) })
	em.Emit("x")
	assert.Equal(t, []int{1, 3}, got, "remaining listeners still run")
}
