package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherDeliversToAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventJobFinished, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.JobID)
		return errors.New("first failed")
	})
	d.Subscribe(EventJobFinished, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.JobID)
		return nil
	})
	d.Subscribe(EventJobFailed, func(context.Context, Event) error {
		t.Fatalf("unrelated handler called")
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventJobFinished, "job-1", JobFinishedPayload{}))
	if err == nil || err.Error() != "first failed" {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(got) != 2 || got[0] != "first:job-1" || got[1] != "second:job-1" {
		t.Fatalf("unexpected deliveries %v", got)
	}
}

func TestNewEventStampsIDAndTime(t *testing.T) {
	e := NewEvent(EventJobStarted, "job-2", nil)
	if e.ID == "" || e.Timestamp.IsZero() || e.Type != EventJobStarted || e.JobID != "job-2" {
		t.Fatalf("unexpected event %+v", e)
	}
}
