package cache

import (
	"testing"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

func testView(kpi float64) View {
	return View{
		record.ToolSIEM: &record.Bundle{
			Tool: record.ToolSIEM,
			KPIs: map[string]float64{"totalEvents": kpi},
		},
	}
}

func TestViewCache_HitAndExpiry(t *testing.T) {
	c := NewViewCache(time.Minute)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	key := Key("acme", "month", "daily")
	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set(key, "acme", testView(42))
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if got[record.ToolSIEM].KPIs["totalEvents"] != 42 {
		t.Errorf("cached KPI = %v, want 42", got[record.ToolSIEM].KPIs["totalEvents"])
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("entry should have expired")
	}

	hits, misses, entries := c.Stats()
	if hits != 1 || misses != 2 || entries != 0 {
		t.Errorf("stats = %d/%d/%d, want 1/2/0", hits, misses, entries)
	}
}

func TestViewCache_GetReturnsCopy(t *testing.T) {
	c := NewViewCache(time.Minute)
	key := Key("acme", "all")
	c.Set(key, "acme", testView(10))

	got, _ := c.Get(key)
	got[record.ToolSIEM].KPIs["totalEvents"] = 999

	again, _ := c.Get(key)
	if again[record.ToolSIEM].KPIs["totalEvents"] != 10 {
		t.Error("mutating a returned view must not change the cached one")
	}
}

func TestViewCache_InvalidateCompany(t *testing.T) {
	c := NewViewCache(time.Minute)
	c.Set(Key("acme", "month"), "acme", testView(1))
	c.Set(Key("acme", "week"), "acme", testView(2))
	c.Set(Key("globex", "month"), "globex", testView(3))

	c.InvalidateCompany("acme")

	if _, ok := c.Get(Key("acme", "month")); ok {
		t.Error("acme month view should be gone")
	}
	if _, ok := c.Get(Key("acme", "week")); ok {
		t.Error("acme week view should be gone")
	}
	if _, ok := c.Get(Key("globex", "month")); !ok {
		t.Error("globex view should survive")
	}
}
