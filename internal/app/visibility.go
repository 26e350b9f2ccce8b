package app

import "sync"

// VisibilityTracker records, per in-flight response id, whether its UI
// representation is currently on-screen. The UI publishes; scheduler poll
// loops subscribe per id so the coupling between view state and timers is
// an explicit channel, not a shared flag read inside a timer callback.
//
// Visibility is purely advisory: it gates network work on poll ticks but
// never fails or stops a job.
type VisibilityTracker struct {
	mu      sync.Mutex
	visible map[string]bool
	subs    map[string][]chan bool
}

func NewVisibilityTracker() *VisibilityTracker {
	return &VisibilityTracker{
		visible: map[string]bool{},
		subs:    map[string][]chan bool{},
	}
}

// Set records visibility for a response id and publishes the new value to
// its subscribers. Publishing never blocks; a subscriber that has not
// drained its channel keeps only the latest value.
func (t *VisibilityTracker) Set(id string, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible[id] = visible
	for _, ch := range t.subs[id] {
		select {
		case ch <- visible:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- visible:
			default:
			}
		}
	}
}

// Visible reports the recorded visibility for id. Unknown ids are treated
// as visible so a job whose view was never registered still gets polled.
func (t *VisibilityTracker) Visible(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.visible[id]
	if !ok {
		return true
	}
	return v
}

// Subscribe returns a channel receiving visibility updates for id, seeded
// with the current value.
func (t *VisibilityTracker) Subscribe(id string) <-chan bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan bool, 1)
	v, ok := t.visible[id]
	if !ok {
		v = true
	}
	ch <- v
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a previously subscribed channel for id.
func (t *VisibilityTracker) Unsubscribe(id string, sub <-chan bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	channels := t.subs[id]
	for i, ch := range channels {
		if ch == sub {
			t.subs[id] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(t.subs[id]) == 0 {
		delete(t.subs, id)
	}
}

// Forget drops all state for a response id; called when its job reaches a
// terminal state or is cancelled.
func (t *VisibilityTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.visible, id)
	delete(t.subs, id)
}
