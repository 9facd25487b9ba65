package apptable

import (
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		AnalyticsEventsCapacity: 10,
		CustomEventsCapacity:    10,
		MetricNameCap:           10,
		ErrorsCapacity:          10,
		SlowSamplesCapacity:     10,
	}
}

func TestGetOrCreateSharesEntryForSameIdentity(t *testing.T) {
	tbl := New(testLimits(), nil)
	id := Identity{LicenseKey: "k1", AppNames: []string{"app1"}}

	e1, created1 := tbl.GetOrCreate(id, time.Now())
	if !created1 {
		t.Fatal("expected first GetOrCreate to create a new entry")
	}
	e2, created2 := tbl.GetOrCreate(id, time.Now())
	if created2 {
		t.Fatal("expected second GetOrCreate to reuse the entry")
	}
	if e1 != e2 {
		t.Fatal("expected same entry pointer for identical identity")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestGetOrCreateDifferentIdentitiesGetDifferentEntries(t *testing.T) {
	tbl := New(testLimits(), nil)
	id1 := Identity{LicenseKey: "k1", AppNames: []string{"app1"}}
	id2 := Identity{LicenseKey: "k1", AppNames: []string{"app2"}}

	e1, _ := tbl.GetOrCreate(id1, time.Now())
	e2, _ := tbl.GetOrCreate(id2, time.Now())
	if e1 == e2 {
		t.Fatal("expected distinct entries for distinct identities")
	}
}

func TestGetOrCreateReinitiatesHandshakeAfterDisconnect(t *testing.T) {
	tbl := New(testLimits(), nil)
	id := Identity{LicenseKey: "k1", AppNames: []string{"app1"}}

	e1, _ := tbl.GetOrCreate(id, time.Now())
	e1.Disconnect()

	e2, created := tbl.GetOrCreate(id, time.Now())
	if !created {
		t.Fatal("expected a new entry to be created after disconnect")
	}
	if e1 == e2 {
		t.Fatal("expected a fresh entry after disconnect, not the old disconnected one")
	}
}

func TestEvictIdleRemovesOnlyStaleEntries(t *testing.T) {
	tbl := New(testLimits(), nil)
	now := time.Now()

	fresh := Identity{LicenseKey: "k1", AppNames: []string{"fresh"}}
	stale := Identity{LicenseKey: "k1", AppNames: []string{"stale"}}

	tbl.GetOrCreate(fresh, now)
	staleEntry, _ := tbl.GetOrCreate(stale, now.Add(-time.Hour))

	evicted := tbl.EvictIdle(now, 10*time.Minute)
	if len(evicted) != 1 || evicted[0] != staleEntry {
		t.Fatalf("expected exactly the stale entry evicted, got %v", evicted)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only fresh entry remaining)", tbl.Len())
	}
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestEvictIdleClosesConnections(t *testing.T) {
	tbl := New(testLimits(), nil)
	id := Identity{LicenseKey: "k1", AppNames: []string{"app1"}}
	e, _ := tbl.GetOrCreate(id, time.Now().Add(-time.Hour))

	conn := &fakeConn{}
	e.AddConn(conn)

	tbl.EvictIdle(time.Now(), time.Minute)
	if !conn.closed {
		t.Fatal("expected connection to be closed on eviction")
	}
}
