package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewRequesterID(t *testing.T) {
	t.Parallel()

	cases := map[string]RequesterID{
		"user@localhost":          "user@localhost",
		"user@localhost/desktop":  "user@localhost",
		"  user@localhost/a/b  ":  "user@localhost",
		"user@localhost/Resource": "user@localhost",
		"":                        "",
	}
	for in, want := range cases {
		if got := NewRequesterID(in); got != want {
			t.Fatalf("NewRequesterID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryStoreUpdateCreatesSession(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return fixed }))
	id := NewRequesterID("user@localhost/desktop")

	err := s.Update(context.Background(), id, func(sess *Session) error {
		sess.Intent = IntentInscricao
		sess.SetSlot("curso", "L-EI")
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sess, found, err := s.Get(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if sess.Requester != id {
		t.Fatalf("unexpected requester %q", sess.Requester)
	}
	if sess.SlotString("curso") != "L-EI" {
		t.Fatalf("slot not persisted: %+v", sess.Slots)
	}
	if !sess.UpdatedAt.Equal(fixed) {
		t.Fatalf("UpdatedAt = %v, want %v", sess.UpdatedAt, fixed)
	}
}

func TestMemoryStoreUpdateError(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.Update(context.Background(), "user@localhost", func(sess *Session) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fn error, got %v", err)
	}

	if err := s.Update(context.Background(), "", func(*Session) error { return nil }); !errors.Is(err, ErrEmptyRequester) {
		t.Fatalf("expected ErrEmptyRequester, got %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	id := RequesterID("user@localhost")

	if err := s.Update(context.Background(), id, func(sess *Session) error {
		sess.Intent = IntentHorarios
		sess.SetSlot("curso", "L-EI")
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cp, _, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	cp.SetSlot("curso", "mutated")

	fresh, _, _ := s.Get(context.Background(), id)
	if fresh.SlotString("curso") != "L-EI" {
		t.Fatal("Get() must not expose the stored session to mutation")
	}
}

func TestMemoryStoreUpdateIsAtomicPerKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	id := RequesterID("user@localhost")
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(context.Background(), id, func(sess *Session) error {
				sess.Intent = IntentPagamentos
				n, _ := sess.Slots["n"].(int)
				sess.Slots["n"] = n + 1
				return nil
			})
		}()
	}
	wg.Wait()

	sess, _, _ := s.Get(context.Background(), id)
	if n, _ := sess.Slots["n"].(int); n != workers {
		t.Fatalf("lost updates: n = %d, want %d", n, workers)
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	id := RequesterID("user@localhost")

	if err := s.Update(context.Background(), id, func(sess *Session) error { return nil }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Remove(context.Background(), id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, found, _ := s.Get(context.Background(), id); found {
		t.Fatal("session survived Remove")
	}

	// Removing again is a no-op.
	if err := s.Remove(context.Background(), id); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}

func TestSessionSlotStrings(t *testing.T) {
	t.Parallel()

	sess := NewSession("user@localhost", time.Now())
	sess.SetSlot("a", []string{"SO1", "PF"})
	sess.SetSlot("b", []any{"SO1", 42, "PF"})
	sess.SetSlot("c", "SO1")
	sess.SetSlot("d", 7)

	if got := sess.SlotStrings("a"); len(got) != 2 {
		t.Fatalf("a = %v", got)
	}
	if got := sess.SlotStrings("b"); len(got) != 2 {
		t.Fatalf("b = %v", got)
	}
	if got := sess.SlotStrings("c"); len(got) != 1 || got[0] != "SO1" {
		t.Fatalf("c = %v", got)
	}
	if got := sess.SlotStrings("d"); got != nil {
		t.Fatalf("d = %v", got)
	}
	if got := sess.SlotStrings("missing"); got != nil {
		t.Fatalf("missing = %v", got)
	}
}

func TestSessionValidate(t *testing.T) {
	t.Parallel()

	sess := NewSession("user@localhost", time.Now())
	if err := sess.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	sess.Awaiting = "curso"
	if err := sess.Validate(); err == nil {
		t.Fatal("expected error for awaiting slot without intent")
	}

	sess.Intent = IntentHorarios
	if err := sess.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
