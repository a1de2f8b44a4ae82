package tilecache

import "testing"

func key(n int) Key {
	return Key{SurveyHash: 1, Order: 0, Pix: int32(n)}
}

func TestGet_Missing(t *testing.T) {
	c := New(100)
	if _, ok := c.Get(key(0)); ok {
		t.Fatalf("expected miss on empty cache")
	}
}

func TestAddGet(t *testing.T) {
	c := New(100)
	c.Add(key(1), "a", 10, nil)
	v, ok := c.Get(key(1))
	if !ok || v.(string) != "a" {
		t.Fatalf("got %v,%v want a,true", v, ok)
	}
	if c.Cost() != 10 || c.Len() != 1 {
		t.Fatalf("cost=%d len=%d", c.Cost(), c.Len())
	}
}

func TestEvict_LRUOrder(t *testing.T) {
	c := New(100)
	c.Add(key(1), "a", 40, nil)
	c.Add(key(2), "b", 40, nil)
	// touch 1 so 2 becomes the eviction candidate
	c.Get(key(1))
	c.Add(key(3), "c", 40, nil)

	if _, ok := c.Get(key(2)); ok {
		t.Fatalf("entry 2 should have been evicted")
	}
	if _, ok := c.Get(key(1)); !ok {
		t.Fatalf("entry 1 should survive")
	}
	if _, ok := c.Get(key(3)); !ok {
		t.Fatalf("entry 3 should survive")
	}
	if c.Cost() != 80 {
		t.Fatalf("cost=%d want 80", c.Cost())
	}
}

func TestEvict_VetoKeepsEntryAndBudgetOverrun(t *testing.T) {
	pin := func(any) EvictDecision { return Keep }
	c := New(50)
	c.Add(key(1), "a", 40, pin)
	c.Add(key(2), "b", 40, pin)

	// nothing may be evicted, the cache stays over budget
	if c.Len() != 2 {
		t.Fatalf("len=%d want 2", c.Len())
	}
	if c.Cost() != 80 {
		t.Fatalf("cost=%d want 80", c.Cost())
	}
}

func TestEvict_SkipsVetoedEntry(t *testing.T) {
	pin := func(any) EvictDecision { return Keep }
	c := New(100)
	c.Add(key(1), "a", 40, pin)
	c.Add(key(2), "b", 40, nil)
	c.Add(key(3), "c", 40, nil)

	// 1 is LRU but pinned; 2 goes instead
	if _, ok := c.Get(key(1)); !ok {
		t.Fatalf("pinned entry 1 must survive")
	}
	if _, ok := c.Get(key(2)); ok {
		t.Fatalf("entry 2 should have been evicted")
	}
}

func TestAdd_DuplicateVetoKeepsOldValue(t *testing.T) {
	pin := func(any) EvictDecision { return Keep }
	c := New(100)
	c.Add(key(1), "old", 10, pin)
	c.Add(key(1), "new", 10, nil)

	v, _ := c.Get(key(1))
	if v.(string) != "old" {
		t.Fatalf("got %v want old", v)
	}
	if c.Len() != 1 || c.Cost() != 10 {
		t.Fatalf("len=%d cost=%d", c.Len(), c.Cost())
	}
}

func TestAdd_DuplicateDropReplaces(t *testing.T) {
	released := 0
	drop := func(any) EvictDecision { released++; return Drop }
	c := New(100)
	c.Add(key(1), "old", 10, drop)
	c.Add(key(1), "new", 20, nil)

	v, _ := c.Get(key(1))
	if v.(string) != "new" {
		t.Fatalf("got %v want new", v)
	}
	if released != 1 {
		t.Fatalf("old value not released")
	}
	if c.Len() != 1 || c.Cost() != 20 {
		t.Fatalf("len=%d cost=%d", c.Len(), c.Cost())
	}
}

func TestSetCost_TriggersEviction(t *testing.T) {
	c := New(100)
	c.Add(key(1), "a", 10, nil)
	c.Add(key(2), "b", 10, nil)

	// decode finished, true size pushes past the budget
	c.SetCost(key(2), 95)

	if _, ok := c.Get(key(1)); ok {
		t.Fatalf("entry 1 should have been evicted")
	}
	if c.Cost() != 95 {
		t.Fatalf("cost=%d want 95", c.Cost())
	}
}

func TestSetCost_UnknownKeyIgnored(t *testing.T) {
	c := New(100)
	c.SetCost(key(9), 50)
	if c.Cost() != 0 {
		t.Fatalf("cost=%d want 0", c.Cost())
	}
}
