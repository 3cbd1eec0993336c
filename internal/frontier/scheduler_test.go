package frontier_test

import (
	"context"
	"testing"
	"time"

	"github.com/sumiripple/sumiripple/internal/frontier"
)

func TestSchedulerEmptyReturnsNotOk(t *testing.T) {
	s := frontier.New(1, time.Millisecond, 100, nil)
	_, ok, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false on empty frontier")
	}
}

func TestSchedulerDispatchesPushedEntry(t *testing.T) {
	s := frontier.New(1, time.Millisecond, 100, nil)
	s.Push(frontier.Entry{PageURL: "https://q.test/", Host: "q.test", Priority: 0, AddedAt: time.Now()})

	ticket, ok, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a dispatched entry")
	}
	if ticket.Entry.PageURL != "https://q.test/" {
		t.Errorf("unexpected entry: %+v", ticket.Entry)
	}
	ticket.Release()
}

func TestSchedulerPriorityOrdering(t *testing.T) {
	s := frontier.New(2, time.Millisecond, 100, nil)
	now := time.Now()
	s.Push(frontier.Entry{PageURL: "https://a.test/low", Host: "a.test", Priority: 10, AddedAt: now})
	s.Push(frontier.Entry{PageURL: "https://b.test/high", Host: "b.test", Priority: 0, AddedAt: now.Add(time.Second)})

	ticket, ok, err := s.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected dispatch, err=%v ok=%v", err, ok)
	}
	if ticket.Entry.PageURL != "https://b.test/high" {
		t.Errorf("expected higher-priority entry dispatched first, got %q", ticket.Entry.PageURL)
	}
}

func TestSchedulerDuplicatePushIgnored(t *testing.T) {
	s := frontier.New(2, time.Millisecond, 100, nil)
	now := time.Now()
	s.Push(frontier.Entry{PageURL: "https://q.test/", Host: "q.test", Priority: 0, AddedAt: now})
	s.Push(frontier.Entry{PageURL: "https://q.test/", Host: "q.test", Priority: 0, AddedAt: now})

	if got := s.Len(); got != 1 {
		t.Errorf("expected 1 queued entry after duplicate push, got %d", got)
	}
}

func TestSchedulerRateLimitedHostNotDispatched(t *testing.T) {
	s := frontier.New(2, time.Millisecond, 100, nil)
	s.MarkRateLimited("q.test")
	s.Push(frontier.Entry{PageURL: "https://q.test/", Host: "q.test", Priority: 0, AddedAt: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok, err := s.Next(ctx)
	if ok {
		t.Error("rate-limited host should never be dispatched")
	}
	if err == nil {
		t.Error("expected context deadline error since the host never becomes ready")
	}
}

func TestSchedulerDrainHostResolvesStrandedEntries(t *testing.T) {
	s := frontier.New(2, time.Millisecond, 100, nil)
	now := time.Now()
	s.Push(frontier.Entry{PageURL: "https://q.test/a", Host: "q.test", Priority: 0, AddedAt: now})
	s.Push(frontier.Entry{PageURL: "https://q.test/b", Host: "q.test", Priority: 1, AddedAt: now})
	s.Push(frontier.Entry{PageURL: "https://other.test/", Host: "other.test", Priority: 0, AddedAt: now})

	s.MarkRateLimited("q.test")
	drained := s.DrainHost("q.test")

	if len(drained) != 2 {
		t.Fatalf("expected both q.test entries drained, got %d", len(drained))
	}
	if got := s.Len(); got != 1 {
		t.Errorf("expected only the other.test entry left queued, got %d", got)
	}

	ticket, ok, err := s.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected remaining entry to dispatch, err=%v ok=%v", err, ok)
	}
	if ticket.Entry.Host != "other.test" {
		t.Errorf("expected other.test to dispatch, got %q", ticket.Entry.Host)
	}
	ticket.Release()
}

func TestSchedulerRecordRequestGatesCooldown(t *testing.T) {
	s := frontier.New(1, 50*time.Millisecond, 100, nil)
	s.RecordRequest("q.test")
	s.Push(frontier.Entry{PageURL: "https://q.test/", Host: "q.test", Priority: 0, AddedAt: time.Now()})

	start := time.Now()
	ticket, ok, err := s.Next(context.Background())
	elapsed := time.Since(start)
	if err != nil || !ok {
		t.Fatalf("expected eventual dispatch, err=%v ok=%v", err, ok)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("expected dispatch to wait out the cooldown, only waited %v", elapsed)
	}
	ticket.Release()
}

func TestSchedulerDomainStateRoundTrip(t *testing.T) {
	s := frontier.New(1, time.Millisecond, 100, nil)
	s.RecordRequest("q.test")

	ds := s.DomainState("q.test")
	if ds.RequestCount != 1 {
		t.Errorf("expected RequestCount 1, got %d", ds.RequestCount)
	}

	s2 := frontier.New(1, time.Millisecond, 100, nil)
	s2.RestoreDomainState(ds)
	if got := s2.DomainState("q.test"); got.RequestCount != 1 {
		t.Errorf("expected restored RequestCount 1, got %d", got.RequestCount)
	}
}
