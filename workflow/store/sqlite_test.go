package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return newSQLiteStore(t)
	})
}

func TestSQLiteStore_InMemory(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore(:memory:) failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if err := st.Put(ctx, "workflow:cp", []byte("x"), Summary{
		ID: "cp", WorkflowID: "wf", Sequence: 1, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := st.Get(ctx, "workflow:cp"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Put(ctx, "workflow:cp", []byte("survives"), Summary{
		ID: "cp", WorkflowID: "wf", Sequence: 7, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = second.Close() }()

	data, err := second.GetLatest(ctx, "wf")
	if err != nil {
		t.Fatalf("GetLatest after reopen failed: %v", err)
	}
	if string(data) != "survives" {
		t.Errorf("expected persisted record, got %q", data)
	}

	summaries, err := second.List(ctx, "workflow:")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Sequence != 7 {
		t.Errorf("unexpected summaries after reopen: %+v", summaries)
	}
}

func TestSQLiteStore_TimestampRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	if err := st.Put(ctx, "workflow:cp", []byte("x"), Summary{
		ID: "cp", WorkflowID: "wf", Sequence: 1, Timestamp: ts,
	}); err != nil {
		t.Fatal(err)
	}

	summaries, err := st.List(ctx, "workflow:")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if !summaries[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp round trip lost precision: %v vs %v", summaries[0].Timestamp, ts)
	}
}
