package conversation

import (
	"sync"
	"testing"

	"github.com/duckmesh/querychat/internal/warehouse"
)

func TestAppendPreservesOrder(t *testing.T) {
	store := NewStore()
	store.Append(Turn{Role: RoleUser, Content: "q1"}, Turn{Role: RoleAssistant, Content: "a1", SQL: "SELECT 1"})
	store.Append(Turn{Role: RoleUser, Content: "q2"})

	turns := store.All()
	if len(turns) != 3 || store.Len() != 3 {
		t.Fatalf("turns = %#v", turns)
	}
	for i, want := range []string{"q1", "a1", "q2"} {
		if turns[i].Content != want {
			t.Fatalf("turns[%d].Content = %q, want %q", i, turns[i].Content, want)
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Append(Turn{Role: RoleUser, Content: "q1"})

	turns := store.All()
	turns[0].Content = "mutated"
	if store.All()[0].Content != "q1" {
		t.Fatal("All() exposed internal storage")
	}
}

func TestLastSQL(t *testing.T) {
	store := NewStore()
	if _, ok := store.LastSQL(); ok {
		t.Fatal("LastSQL() ok on empty store")
	}
	store.Append(
		Turn{Role: RoleUser, Content: "q1"},
		Turn{Role: RoleAssistant, Content: "a1", SQL: "SELECT 1", Results: &warehouse.Result{}},
		Turn{Role: RoleUser, Content: "q2"},
		Turn{Role: RoleAssistant, Content: "a2", SQL: "SELECT 2"},
	)
	sql, ok := store.LastSQL()
	if !ok || sql != "SELECT 2" {
		t.Fatalf("LastSQL() = %q, %v", sql, ok)
	}
}

func TestConcurrentAppend(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(Turn{Role: RoleUser})
		}()
	}
	wg.Wait()
	if store.Len() != 50 {
		t.Fatalf("Len() = %d", store.Len())
	}
}
