package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_InsertRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore()

	s := New("dup", testOptions(), 10, time.Now(), time.Second)
	if err := store.Insert(s); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(s); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", store.Len())
	}
}

func TestMemoryStore_GetAndRemove(t *testing.T) {
	store := NewMemoryStore()
	s := New("s1", testOptions(), 10, time.Now(), time.Second)
	_ = store.Insert(s)

	got, ok := store.Get("s1")
	if !ok || got.ID != "s1" {
		t.Fatalf("Get(s1) = %v, %v", got, ok)
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) should not find a session")
	}

	store.Remove("s1")
	store.Remove("s1") // absent id is a no-op
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
}

func TestMemoryStore_ConcurrentInsert(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			_ = store.Insert(New(id, testOptions(), 10, time.Now(), time.Second))
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("expected 50 sessions, got %d", store.Len())
	}
}
