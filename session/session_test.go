package session

import (
	"fmt"
	"sync"
	"testing"

	"scout/providers/ai"
)

func TestLoadOrCreate_EmptyIDCreatesFreshSession(t *testing.T) {
	store := NewStore()

	id, created := store.LoadOrCreate("")
	if id == "" {
		t.Fatal("expected a generated session id")
	}
	if created.ID != id {
		t.Errorf("session ID = %q, want %q", created.ID, id)
	}

	again, loaded := store.LoadOrCreate(id)
	if again != id || loaded != created {
		t.Error("expected the same session on reload")
	}
}

func TestLoadOrCreate_UnknownIDCreatesFreshSession(t *testing.T) {
	store := NewStore()

	id, _ := store.LoadOrCreate("no-such-session")
	if id == "no-such-session" {
		t.Error("unknown id must not be adopted; a fresh UUID is assigned")
	}
}

func TestAppend_PreservesOrderAndTrimsOldestPairs(t *testing.T) {
	store := NewStore(WithHistoryLimit(4))
	_, sess := store.LoadOrCreate("")

	for i := 0; i < 3; i++ {
		sess.Append(
			ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("q%d", i)},
			ai.Message{Role: ai.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}

	history := sess.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	want := []string{"q1", "a1", "q2", "a2"}
	for i, content := range want {
		if history[i].Content != content {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, content)
		}
	}
}

func TestAcquireWriter_SecondConcurrentAcquireFails(t *testing.T) {
	store := NewStore()
	id, _ := store.LoadOrCreate("")

	if !store.AcquireWriter(id) {
		t.Fatal("first acquire should succeed")
	}
	if store.AcquireWriter(id) {
		t.Error("second acquire should fail while the right is held")
	}

	store.ReleaseWriter(id)
	if !store.AcquireWriter(id) {
		t.Error("acquire after release should succeed")
	}
}

func TestAcquireWriter_UnknownSessionFails(t *testing.T) {
	store := NewStore()
	if store.AcquireWriter("missing") {
		t.Error("acquire on unknown session should fail")
	}
	store.ReleaseWriter("missing") // no-op, must not panic
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store := NewStore(WithCapacity(3))

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := store.LoadOrCreate("")
		ids = append(ids, id)
	}

	// Touch the oldest so the second-oldest becomes the LRU victim.
	store.LoadOrCreate(ids[0])
	overflowID, _ := store.LoadOrCreate("")

	if store.Len() != 3 {
		t.Fatalf("store length = %d, want 3", store.Len())
	}
	if reloaded, _ := store.LoadOrCreate(ids[1]); reloaded == ids[1] {
		t.Error("expected the least-recently-used session to be evicted")
	}
	if reloaded, _ := store.LoadOrCreate(ids[0]); reloaded != ids[0] {
		t.Error("recently touched session should survive eviction")
	}
	if reloaded, _ := store.LoadOrCreate(overflowID); reloaded != overflowID {
		t.Error("newest session should survive eviction")
	}
}

func TestStore_EvictionSkipsHeldWriters(t *testing.T) {
	store := NewStore(WithCapacity(2))

	first, _ := store.LoadOrCreate("")
	store.LoadOrCreate("")
	if !store.AcquireWriter(first) {
		t.Fatal("acquire should succeed")
	}

	store.LoadOrCreate("")
	if reloaded, _ := store.LoadOrCreate(first); reloaded != first {
		t.Error("session with a held writer right must not be evicted")
	}
}

func TestStore_ConcurrentWriterContention(t *testing.T) {
	store := NewStore()
	id, _ := store.LoadOrCreate("")

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.AcquireWriter(id) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var granted int
	for range wins {
		granted++
	}
	if granted != 1 {
		t.Errorf("writer right granted %d times, want exactly 1", granted)
	}
}
