package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeRunStarted, Data: RunStarted{TaskID: "1"}})
	b.Publish(Event{Type: TypeRunFinished, Data: RunFinished{TaskID: "1", Success: true}})

	first := <-a
	assert.Equal(t, TypeRunStarted, first.Type)
	assert.False(t, first.Time.IsZero())
	select {
	case <-a:
		t.Fatal("second event should have been dropped for the full subscriber")
	default:
	}
	assert.Equal(t, uint64(1), b.Dropped())

	require.Len(t, c, 2)
	<-c
	fin := <-c
	assert.True(t, fin.Data.(RunFinished).Success)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	b.Publish(Event{Type: TypeRunSkipped}) // must not panic after unsubscribe
}

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()

	b := New()
	fin, unsub := b.Subscribe(4, TypeRunFinished, TypeRunSkipped)
	defer unsub()

	Emit(b, TypeRunStarted, RunStarted{TaskID: "1"})
	Emit(b, TypeJobsReloaded, JobsReloaded{Added: 1})
	Emit(b, TypeRunFinished, RunFinished{TaskID: "1"})
	Emit(nil, TypeRunFinished, RunFinished{TaskID: "2"})

	require.Len(t, fin, 1)
	e := <-fin
	assert.Equal(t, TypeRunFinished, e.Type)
	assert.Equal(t, "1", e.Data.(RunFinished).TaskID)
	assert.Zero(t, b.Dropped(), "filtered events are not drops")
}

func TestUnsubscribeWhilePublishing(t *testing.T) {
	t.Parallel()

	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unsub := b.Subscribe(1)
			for j := 0; j < 50; j++ {
				Emit(b, TypeRunStarted, RunStarted{})
			}
			unsub()
		}()
	}
	wg.Wait()
}
