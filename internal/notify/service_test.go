package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "taskd/pkg/logx"
)

type recordSink struct {
	mu      sync.Mutex
	sent    []Notification
	failFor int // fail this many calls before succeeding
	calls   int
}

func (r *recordSink) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failFor {
		return errors.New("transient")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordSink) delivered() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestServiceDeliversQueuedNotifications(t *testing.T) {
	sink := &recordSink{}
	s := New(Config{Workers: 2, QueueSize: 8, RatePerSec: 100}, sink, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := int64(1); i <= 3; i++ {
		if err := s.Notify(context.Background(), Notification{TaskID: i, Title: "t"}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(sink.delivered()) == 3 })
}

func TestServiceRetriesTransientFailures(t *testing.T) {
	sink := &recordSink{failFor: 2}
	s := New(Config{
		Workers: 1, QueueSize: 4, RatePerSec: 100,
		RetryMax: 3, RetryBase: 5 * time.Millisecond, RetryMaxDelay: 20 * time.Millisecond,
	}, sink, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{TaskID: 1}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitFor(t, func() bool { return len(sink.delivered()) == 1 })
}

func TestServiceNotifyBeforeStart(t *testing.T) {
	sink := &recordSink{}
	s := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 100}, sink, logx.Nop())
	if err := s.Notify(context.Background(), Notification{TaskID: 1}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped before Start", err)
	}
}

func TestServiceStopDrainsQueue(t *testing.T) {
	sink := &recordSink{}
	s := New(Config{Workers: 1, QueueSize: 16, RatePerSec: 1000}, sink, logx.Nop())
	s.Start(context.Background())

	for i := int64(1); i <= 5; i++ {
		if err := s.Notify(context.Background(), Notification{TaskID: i}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)

	if got := len(sink.delivered()); got != 5 {
		t.Fatalf("delivered = %d, want 5 (drain on stop)", got)
	}
	if err := s.Notify(context.Background(), Notification{TaskID: 6}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped after Stop", err)
	}
}

func TestServiceStartStopStart(t *testing.T) {
	sink := &recordSink{}
	s := New(Config{Workers: 1, QueueSize: 4, RatePerSec: 100}, sink, logx.Nop())

	s.Start(context.Background())
	s.Stop(context.Background())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{TaskID: 1}); err != nil {
		t.Fatalf("notify after restart: %v", err)
	}
	waitFor(t, func() bool { return len(sink.delivered()) == 1 })
}
