package jobs

import (
	"context"
	"testing"
	"time"
)

func TestHubFanOutIndependentCursors(t *testing.T) {
	hub := NewHub(16)
	hub.Publish(Event{Type: EventOutput, Line: "one"})
	hub.Publish(Event{Type: EventOutput, Line: "two"})

	// Two subscribers, each starting from zero, both see every event.
	for sub := 0; sub < 2; sub++ {
		events, done, err := hub.Fetch(context.Background(), 0)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if done {
			t.Fatal("hub must stay open until a terminal event")
		}
		if len(events) != 2 || events[0].Line != "one" || events[1].Line != "two" {
			t.Fatalf("subscriber %d saw %v", sub, events)
		}
	}
}

func TestHubSequenceCursorSkipsSeen(t *testing.T) {
	hub := NewHub(16)
	hub.Publish(Event{Type: EventOutput, Line: "one"})
	events, _, _ := hub.Fetch(context.Background(), 0)
	cursor := events[len(events)-1].Sequence

	hub.Publish(Event{Type: EventOutput, Line: "two"})
	events, _, _ = hub.Fetch(context.Background(), cursor)
	if len(events) != 1 || events[0].Line != "two" {
		t.Fatalf("expected only unseen events, got %v", events)
	}
}

func TestHubTerminalEventCloses(t *testing.T) {
	hub := NewHub(16)
	hub.Publish(Event{Type: EventCompleted, Percent: 100})
	hub.Publish(Event{Type: EventOutput, Line: "late"}) // dropped

	events, _, err := hub.Fetch(context.Background(), 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventCompleted {
		t.Fatalf("expected only the terminal event, got %v", events)
	}

	_, done, err := hub.Fetch(context.Background(), events[0].Sequence)
	if err != nil {
		t.Fatalf("fetch after close: %v", err)
	}
	if !done {
		t.Fatal("expected done after terminal event consumed")
	}
}

func TestHubFetchBlocksUntilPublish(t *testing.T) {
	hub := NewHub(16)
	got := make(chan []Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0)
		got <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(Event{Type: EventOutput, Line: "wake"})

	select {
	case events := <-got:
		if len(events) != 1 || events[0].Line != "wake" {
			t.Fatalf("unexpected events %v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not wake on publish")
	}
}

func TestHubFetchHonorsContext(t *testing.T) {
	hub := NewHub(16)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0)
	if err == nil {
		t.Fatal("expected context error from blocked fetch")
	}
}

func TestHubCloseWakesWaiters(t *testing.T) {
	hub := NewHub(16)
	done := make(chan bool, 1)
	go func() {
		_, finished, _ := hub.Fetch(context.Background(), 0)
		done <- finished
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Close()

	select {
	case finished := <-done:
		if !finished {
			t.Fatal("expected done=true after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake the waiter")
	}
}

func TestHubBoundedBuffer(t *testing.T) {
	hub := NewHub(4)
	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventOutput, Line: "x"})
	}
	events, _, _ := hub.Fetch(context.Background(), 0)
	if len(events) != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", len(events))
	}
	if events[len(events)-1].Sequence != 10 {
		t.Fatalf("expected newest event retained, got seq %d", events[len(events)-1].Sequence)
	}
}
