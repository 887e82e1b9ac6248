package settings

import (
	"context"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutThenGetRoundTrips(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db)
	ctx := context.Background()

	if err := sink.Put(ctx, "navico-123-10.0.0.1:6678", "bearingAlignment", 12.5); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := sink.Get(ctx, "navico-123-10.0.0.1:6678")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["bearingAlignment"] != 12.5 {
		t.Errorf("got %+v, want bearingAlignment=12.5", got)
	}
}

func TestGetUnknownRadarReturnsEmptyNotError(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db)

	got, err := sink.Get(context.Background(), "no-such-radar")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}

func TestPutOverwritesPreviousValue(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db)
	ctx := context.Background()
	key := "furuno-999-10.0.0.2:10024"

	if err := sink.Put(ctx, key, "antennaHeight", 3); err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	if err := sink.Put(ctx, key, "antennaHeight", 4.5); err != nil {
		t.Fatalf("Put 2: %v", err)
	}

	got, err := sink.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["antennaHeight"] != 4.5 {
		t.Errorf("got %v, want the overwritten value 4.5", got["antennaHeight"])
	}
}

func TestPutIsIsolatedPerRadarKey(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db)
	ctx := context.Background()

	if err := sink.Put(ctx, "radar-a", "range", 1852); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := sink.Put(ctx, "radar-b", "range", 3704); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	a, err := sink.Get(ctx, "radar-a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if a["range"] != 1852 {
		t.Errorf("radar-a range = %v, want 1852", a["range"])
	}
}
