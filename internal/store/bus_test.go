package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusCurrentReflectsLastPublish(t *testing.T) {
	b := NewBus()
	require.Equal(t, TrackSequence{}, b.Current())

	b.Publish(TrackSequence{Seg: 3, Part: 2})
	require.Equal(t, TrackSequence{Seg: 3, Part: 2}, b.Current())
}

func TestBusSubscribeReceivesPublishedValue(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(TrackSequence{Seg: 1})

	select {
	case v := <-ch:
		require.EqualValues(t, 1, v.Seg)
	default:
		t.Fatal("expected a value on the subscription channel")
	}
}

func TestBusPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Overwrite without the subscriber ever reading: Publish must not block.
	b.Publish(TrackSequence{Seg: 1})
	b.Publish(TrackSequence{Seg: 2})
	b.Publish(TrackSequence{Seg: 3})

	v := <-ch
	require.EqualValues(t, 3, v.Seg, "only the latest value need be observed")
}

func TestBusCancelRemovesSubscriber(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()
	require.Len(t, b.subs, 1)
	cancel()
	require.Len(t, b.subs, 0)
}
