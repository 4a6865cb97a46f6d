package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	unsubscribe := bus.Subscribe(ScenarioCompleted, func(e *Event) { got = append(got, e) })

	bus.Emit("runs", &ScenarioCompletedData{RunID: "r1", Scenario: "s"})
	bus.Emit("runs", &ScenarioFailedData{RunID: "r1", Scenario: "x"})

	require.Len(t, got, 1)
	assert.Equal(t, ScenarioCompleted, got[0].Type)
	assert.Equal(t, "runs", got[0].Module)
	assert.False(t, got[0].Timestamp.IsZero())

	unsubscribe()
	bus.Emit("runs", &ScenarioCompletedData{RunID: "r2"})
	assert.Len(t, got, 1)
}

func TestBus_NilIsSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit("runs", &RunStartedData{}) })
}

func TestBus_ChannelDropsWhenFull(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, cancel := bus.Channel(2)
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Emit("runs", &RunStartedData{RunID: "r"})
	}

	assert.Len(t, ch, 2)
}

func TestBus_ChannelFiltersTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, cancel := bus.Channel(10, RunCompleted)
	defer cancel()

	bus.Emit("runs", &RunStartedData{RunID: "r"})
	bus.Emit("runs", &RunCompletedData{RunID: "r", Succeeded: 2})

	require.Len(t, ch, 1)
	e := <-ch
	assert.Equal(t, RunCompleted, e.Type)
	assert.Equal(t, 2, e.Data.(*RunCompletedData).Succeeded)
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var mu sync.Mutex
	count := 0
	bus.Subscribe(RunStarted, func(*Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit("runs", &RunStartedData{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, count)
}

func TestEvent_JSON(t *testing.T) {
	e := Event{Type: ScenarioFailed, Module: "runs", Data: &ScenarioFailedData{RunID: "r", Scenario: "s", Error: "infeasible"}}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"scenario_failed"`)
	assert.Contains(t, string(data), `"error":"infeasible"`)
}
