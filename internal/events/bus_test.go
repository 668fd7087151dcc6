package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeReceivesMatchingEvents(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(RunCompleted, func(e *Event) {
		received = append(received, e)
	})

	bus.Emit(RunCompleted, "pipeline", map[string]interface{}{"run_id": "abc"})
	bus.Emit(RunStarted, "pipeline", nil)

	require.Len(t, received, 1, "Only the subscribed type is delivered")
	assert.Equal(t, RunCompleted, received[0].Type)
	assert.Equal(t, "pipeline", received[0].Module)
	assert.Equal(t, "abc", received[0].Data["run_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBus_MultipleHandlersForOneType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(StageCompleted, func(e *Event) { calls++ })
	bus.Subscribe(StageCompleted, func(e *Event) { calls++ })

	bus.Emit(StageCompleted, "pipeline", nil)

	assert.Equal(t, 2, calls)
}

func TestBus_StreamSubscriberReceivesAllTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, cancel := bus.SubscribeAll()
	defer cancel()

	bus.Emit(RunStarted, "pipeline", nil)
	bus.Emit(SeriesStaged, "pipeline", map[string]interface{}{"platform": "Wahed"})

	first := <-ch
	second := <-ch
	assert.Equal(t, RunStarted, first.Type)
	assert.Equal(t, SeriesStaged, second.Type)
}

func TestBus_CancelClosesStream(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, cancel := bus.SubscribeAll()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Emitting after cancel must not panic or block.
	bus.Emit(RunStarted, "pipeline", nil)

	cancel() // second cancel is a no-op
}

func TestBus_SlowStreamSubscriberDoesNotBlockEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	_, cancel := bus.SubscribeAll()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the 64 slot buffer without anyone reading.
		for i := 0; i < 200; i++ {
			bus.Emit(StageStarted, "pipeline", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full stream subscriber")
	}
}

func TestEvent_GetTypedData(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var captured *Event
	bus.Subscribe(StageCompleted, func(e *Event) { captured = e })

	manager.EmitTyped("pipeline", &StageStatusData{
		RunID:   "run-1",
		Stage:   "cleanse",
		Status:  "completed",
		Rows:    42,
		Dropped: 3,
	})

	require.NotNil(t, captured)
	typed := captured.GetTypedData()
	require.NotNil(t, typed)

	stage, ok := typed.(*StageStatusData)
	require.True(t, ok)
	assert.Equal(t, "run-1", stage.RunID)
	assert.Equal(t, "cleanse", stage.Stage)
	assert.Equal(t, 42, stage.Rows)
	assert.Equal(t, 3, stage.Dropped)
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var captured *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { captured = e })

	manager.EmitError("datalake", assert.AnError, map[string]interface{}{"key": "raw/file.csv"})

	require.NotNil(t, captured)
	assert.Equal(t, assert.AnError.Error(), captured.Data["error"])
}
