package notify

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	sub, backlog, err := hub.Subscribe("user_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if len(backlog) != 0 {
		t.Fatalf("unexpected backlog: %v", backlog)
	}

	hub.Publish("user_1", Event{TaskID: "t1", Status: StatusProcessing})

	select {
	case event := <-sub.Events():
		if event.TaskID != "t1" || event.Status != StatusProcessing {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestPerTaskEventsArriveInStateOrder(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("user_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	hub.Publish("user_1", Event{TaskID: "t1", Status: StatusProcessing})
	hub.Publish("user_1", Event{TaskID: "t1", Status: StatusCompleted})

	first := <-sub.Events()
	second := <-sub.Events()
	if first.Status != StatusProcessing || second.Status != StatusCompleted {
		t.Fatalf("out of order: %q then %q", first.Status, second.Status)
	}
}

func TestLateSubscriberGetsReplayBuffer(t *testing.T) {
	hub := NewHub()
	hub.Publish("user_1", Event{TaskID: "t1", Status: StatusProcessing})
	hub.Publish("user_1", Event{TaskID: "t1", Status: StatusCompleted})

	sub, backlog, err := hub.Subscribe("user_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if len(backlog) != 2 {
		t.Fatalf("backlog size %d, want 2", len(backlog))
	}
	if backlog[0].Status != StatusProcessing || backlog[1].Status != StatusCompleted {
		t.Fatalf("backlog out of order: %+v", backlog)
	}
}

func TestStreamsAreIsolatedPerUser(t *testing.T) {
	hub := NewHub()
	sub1, _, _ := hub.Subscribe("user_1")
	defer sub1.Close()
	sub2, _, _ := hub.Subscribe("user_2")
	defer sub2.Close()

	hub.Publish("user_2", Event{TaskID: "t9", Status: StatusFailed})

	select {
	case event := <-sub1.Events():
		t.Fatalf("cross-user delivery: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case event := <-sub2.Events():
		if event.TaskID != "t9" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered to user_2")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	sub, _, _ := hub.Subscribe("user_1")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish("user_1", Event{TaskID: fmt.Sprintf("t%d", i), Status: StatusProcessing})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
}

func TestReplayBufferIsBounded(t *testing.T) {
	hub := NewHub()
	for i := 0; i < DefaultBufferSize*2; i++ {
		hub.Publish("user_1", Event{TaskID: fmt.Sprintf("t%d", i), Status: StatusProcessing})
	}

	sub, backlog, err := hub.Subscribe("user_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if len(backlog) != DefaultBufferSize {
		t.Fatalf("backlog size %d, want %d", len(backlog), DefaultBufferSize)
	}
	if backlog[0].TaskID != fmt.Sprintf("t%d", DefaultBufferSize) {
		t.Fatalf("oldest retained event %q", backlog[0].TaskID)
	}
}
