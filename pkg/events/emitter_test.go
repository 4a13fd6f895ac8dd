package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversInOrderToEverySubscriber(t *testing.T) {
	var e Emitter[int]
	var first, second []int
	e.Subscribe(func(v int) { first = append(first, v) })
	e.Subscribe(func(v int) { second = append(second, v) })

	for i := 1; i <= 3; i++ {
		e.Emit(i)
	}

	assert.Equal(t, []int{1, 2, 3}, first)
	assert.Equal(t, []int{1, 2, 3}, second)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var e Emitter[string]
	var got []string
	unsubscribe := e.Subscribe(func(v string) { got = append(got, v) })
	other := 0
	e.Subscribe(func(string) { other++ })

	e.Emit("a")
	unsubscribe()
	unsubscribe()
	e.Emit("b")

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 2, other)
}

func TestSubscriberMayUnsubscribeWhileEmitting(t *testing.T) {
	var e Emitter[int]
	calls := 0
	var unsubscribe func()
	unsubscribe = e.Subscribe(func(int) {
		calls++
		unsubscribe()
	})

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, 1, calls)
}
