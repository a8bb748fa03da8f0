package handlers

import (
	"sync"
	"testing"
)

func TestPendingQueries(t *testing.T) {
	t.Parallel()

	t.Run("single entry per user", func(t *testing.T) {
		t.Parallel()
		p := NewPendingQueries()

		if _, ok := p.Get(1); ok {
			t.Error("empty tracker should have no entry")
		}

		p.Set(1, 100)
		chatID, ok := p.Get(1)
		if !ok || chatID != 100 {
			t.Errorf("Get(1) = (%d, %v), want (100, true)", chatID, ok)
		}

		// A second selection replaces the first.
		p.Set(1, 200)
		chatID, ok = p.Get(1)
		if !ok || chatID != 200 {
			t.Errorf("Get(1) after replace = (%d, %v), want (200, true)", chatID, ok)
		}
	})

	t.Run("get does not consume", func(t *testing.T) {
		t.Parallel()
		p := NewPendingQueries()
		p.Set(2, 300)

		p.Get(2)
		if _, ok := p.Get(2); !ok {
			t.Error("Get should not remove the entry")
		}

		p.Clear(2)
		if _, ok := p.Get(2); ok {
			t.Error("Clear should remove the entry")
		}
	})

	t.Run("clear is safe on missing entry", func(t *testing.T) {
		t.Parallel()
		p := NewPendingQueries()
		p.Clear(42)
	})

	t.Run("users are independent", func(t *testing.T) {
		t.Parallel()
		p := NewPendingQueries()
		p.Set(1, 10)
		p.Set(2, 20)

		p.Clear(1)
		if chatID, ok := p.Get(2); !ok || chatID != 20 {
			t.Errorf("Get(2) = (%d, %v), want (20, true)", chatID, ok)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		t.Parallel()
		p := NewPendingQueries()

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				p.Set(userID, userID*10)
				p.Get(userID)
				p.Clear(userID)
			}(int64(i + 1))
		}
		wg.Wait()

		for i := range 50 {
			if _, ok := p.Get(int64(i + 1)); ok {
				t.Errorf("user %d still has an entry after clear", i+1)
			}
		}
	})
}
