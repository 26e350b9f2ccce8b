package app

import (
	"testing"
	"time"
)

func TestVisibilityDefaultsToVisible(t *testing.T) {
	tracker := NewVisibilityTracker()
	if !tracker.Visible("unknown") {
		t.Fatal("unregistered ids must default to visible")
	}
}

func TestVisibilitySetAndGet(t *testing.T) {
	tracker := NewVisibilityTracker()
	tracker.Set("r1", false)
	if tracker.Visible("r1") {
		t.Fatal("expected invisible")
	}
	tracker.Set("r1", true)
	if !tracker.Visible("r1") {
		t.Fatal("expected visible")
	}
}

func TestVisibilitySubscribeSeedsCurrentValue(t *testing.T) {
	tracker := NewVisibilityTracker()
	tracker.Set("r1", false)

	sub := tracker.Subscribe("r1")
	select {
	case v := <-sub:
		if v {
			t.Fatal("seed value should be false")
		}
	case <-time.After(time.Second):
		t.Fatal("no seed value delivered")
	}

	tracker.Set("r1", true)
	select {
	case v := <-sub:
		if !v {
			t.Fatal("update should be true")
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestVisibilityPublishNeverBlocks(t *testing.T) {
	tracker := NewVisibilityTracker()
	sub := tracker.Subscribe("r1")

	// Without draining, repeated publishes must not block and the channel
	// must end up holding the latest value.
	for i := 0; i < 10; i++ {
		tracker.Set("r1", i%2 == 0)
	}
	tracker.Set("r1", true)

	var last bool
	deadline := time.After(time.Second)
	for {
		select {
		case v := <-sub:
			last = v
			continue
		case <-deadline:
			t.Fatal("channel never drained")
		default:
		}
		break
	}
	if !last {
		t.Fatalf("latest value = %v, want true", last)
	}
}

func TestVisibilityUnsubscribeStopsDelivery(t *testing.T) {
	tracker := NewVisibilityTracker()
	sub := tracker.Subscribe("r1")
	<-sub // drain seed

	tracker.Unsubscribe("r1", sub)
	tracker.Set("r1", false)
	select {
	case <-sub:
		t.Fatal("delivery after unsubscribe")
	default:
	}
}

func TestVisibilityForgetDropsState(t *testing.T) {
	tracker := NewVisibilityTracker()
	tracker.Set("r1", false)
	tracker.Forget("r1")
	if !tracker.Visible("r1") {
		t.Fatal("forgotten id must default back to visible")
	}
}
