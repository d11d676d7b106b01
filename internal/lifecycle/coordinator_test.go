package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeFeature struct {
	name    string
	initErr error
	log     *[]string
}

func (f *fakeFeature) Initialize(ctx context.Context, userID, userName string) error {
	if f.initErr != nil {
		return f.initErr
	}
	*f.log = append(*f.log, "init:"+f.name)
	return nil
}

func (f *fakeFeature) Cleanup() {
	*f.log = append(*f.log, "cleanup:"+f.name)
}

func TestRegistryInitializeAndCleanupOrder(t *testing.T) {
	var log []string
	r := NewRegistry()
	r.Register("call", &fakeFeature{name: "call", log: &log})
	r.Register("walkie", &fakeFeature{name: "walkie", log: &log})

	if err := r.Initialize(context.Background(), "u1", "User One"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	r.Cleanup()

	want := []string{"init:call", "init:walkie", "cleanup:walkie", "cleanup:call"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestRegistryInitializeRollsBackOnFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	r := NewRegistry()
	r.Register("first", &fakeFeature{name: "first", log: &log})
	r.Register("broken", &fakeFeature{name: "broken", initErr: boom, log: &log})
	r.Register("third", &fakeFeature{name: "third", log: &log})

	err := r.Initialize(context.Background(), "u1", "")
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped boom, got %v", err)
	}

	want := []string{"init:first", "cleanup:first"}
	if len(log) != len(want) || log[0] != want[0] || log[1] != want[1] {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestBusTopicsAndCancel(t *testing.T) {
	bus := NewBus()

	all, cancelAll := bus.Subscribe()
	calls, cancelCalls := bus.Subscribe("call.incoming")
	defer cancelAll()

	bus.Publish(Event{Topic: "call.incoming", Payload: "a"})
	bus.Publish(Event{Topic: "paired.connections", Payload: "b"})

	recvEvent := func(ch <-chan Event) Event {
		t.Helper()
		select {
		case e := <-ch:
			return e
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
		panic("unreachable")
	}

	if e := recvEvent(all); e.Topic != "call.incoming" {
		t.Errorf("unexpected first event: %+v", e)
	}
	if e := recvEvent(all); e.Topic != "paired.connections" {
		t.Errorf("unexpected second event: %+v", e)
	}

	if e := recvEvent(calls); e.Topic != "call.incoming" {
		t.Errorf("filtered subscriber got %+v", e)
	}
	select {
	case e := <-calls:
		t.Errorf("filtered subscriber leaked %+v", e)
	default:
	}

	cancelCalls()
	cancelCalls() // repeated cancel is safe

	// Publishing after cancel must not panic or deliver.
	bus.Publish(Event{Topic: "call.incoming", Payload: "c"})
	if _, ok := <-calls; ok {
		t.Error("canceled subscriber still delivered")
	}
}
