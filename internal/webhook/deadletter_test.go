package webhook

import (
	"fmt"
	"testing"
	"time"
)

func payload(id string) Payload {
	return Payload{
		ID:        id,
		Event:     EventTypeWorkflowFailed,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"reason": "boom"},
	}
}

func TestDeadLetterCapacityRejectsNew(t *testing.T) {
	d := NewDeadLetterStore(3, nil)
	for i := 0; i < 5; i++ {
		d.Add(payload(fmt.Sprintf("p-%d", i)))
	}
	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	// Capacity policy is reject-new: the oldest entries survive.
	entries := d.List(10)
	for i, e := range entries {
		if want := fmt.Sprintf("p-%d", i); e.ID != want {
			t.Errorf("entry %d = %s, want %s", i, e.ID, want)
		}
	}
	if d.Add(payload("p-9")) {
		t.Error("Add() at capacity should report rejection")
	}
}

func TestDeadLetterDeduplicatesByPayloadID(t *testing.T) {
	d := NewDeadLetterStore(10, nil)
	p := payload("p-1")
	if !d.Add(p) || !d.Add(p) {
		t.Error("duplicate Add() should be a no-op success")
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (payload stored once, not per-subscription)", d.Len())
	}
}

func TestDeadLetterRemove(t *testing.T) {
	d := NewDeadLetterStore(10, nil)
	d.Add(payload("p-1"))
	d.Add(payload("p-2"))

	got, found := d.Remove("p-1")
	if !found || got.ID != "p-1" {
		t.Fatalf("Remove() = (%v, %v)", got.ID, found)
	}
	if _, found := d.Remove("p-1"); found {
		t.Error("second Remove() of same id should miss")
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}

	// Removal frees capacity for new entries.
	d2 := NewDeadLetterStore(1, nil)
	d2.Add(payload("a"))
	d2.Remove("a")
	if !d2.Add(payload("b")) {
		t.Error("Add() after Remove() should succeed")
	}
}

func TestDeadLetterListLimit(t *testing.T) {
	d := NewDeadLetterStore(100, nil)
	for i := 0; i < 10; i++ {
		d.Add(payload(fmt.Sprintf("p-%d", i)))
	}
	if got := len(d.List(4)); got != 4 {
		t.Errorf("List(4) = %d entries", got)
	}
	if got := len(d.List(0)); got != 10 {
		t.Errorf("List(0) should use the default limit of 50, got %d", got)
	}
}

func TestNewDeadLetterEnvelope(t *testing.T) {
	p := payload("p-1")
	env := NewDeadLetterEnvelope(p, 5, "max attempts reached")
	if env.Type != DLQEnvelopeType || env.Version != "v1" {
		t.Errorf("envelope header = %s/%s", env.Type, env.Version)
	}
	if env.Attempts != 5 || env.Payload.ID != "p-1" {
		t.Errorf("envelope body = %+v", env)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.At); err != nil {
		t.Errorf("At is not RFC3339: %v", err)
	}
}
