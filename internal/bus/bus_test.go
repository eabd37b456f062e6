package bus

import "testing"

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcast[int](4)
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(7)

	if v := <-a; v != 7 {
		t.Errorf("subscriber a: expected 7, got %d", v)
	}
	if v := <-c; v != 7 {
		t.Errorf("subscriber c: expected 7, got %d", v)
	}
}

// TestBroadcast_SlowSubscriberDropsOldestRatherThanBlocks covers spec.md
// §4.1/§5's bounded-broadcast contract: a subscriber whose buffer is full
// loses its oldest undelivered value, not the incoming one — the bus
// favors freshness over completeness.
func TestBroadcast_SlowSubscriberDropsOldestRatherThanBlocks(t *testing.T) {
	b := NewBroadcast[int](1)
	slow := b.Subscribe()

	b.Publish(1) // fills the 1-capacity buffer
	b.Publish(2) // must evict 1, not drop 2

	select {
	case v := <-slow:
		if v != 2 {
			t.Errorf("expected the stale value to be evicted and 2 to survive, got %d", v)
		}
	default:
		t.Error("expected the freshest value to be delivered")
	}
}

func TestBroadcast_CloseClosesAllSubscriberChannels(t *testing.T) {
	b := NewBroadcast[int](1)
	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub
	if ok {
		t.Error("expected subscriber channel to be closed")
	}
}
