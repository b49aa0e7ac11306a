package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeFactory builds a fresh store per subtest so the contract suite
// runs against every backend.
type storeFactory func(t *testing.T) Store

// runStoreContract exercises the Store contract shared by all
// backends.
func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	summary := func(id, wf string, seq uint64) Summary {
		return Summary{ID: id, WorkflowID: wf, Sequence: seq, Timestamp: time.Now().UTC()}
	}

	t.Run("put then get", func(t *testing.T) {
		st := factory(t)
		if err := st.Put(ctx, "workflow:cp1", []byte("payload"), summary("cp1", "wf", 1)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		data, err := st.Get(ctx, "workflow:cp1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("expected payload, got %q", data)
		}
	})

	t.Run("get missing key", func(t *testing.T) {
		st := factory(t)
		if _, err := st.Get(ctx, "workflow:absent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		st := factory(t)
		if err := st.Put(ctx, "workflow:cp1", []byte("v1"), summary("cp1", "wf", 1)); err != nil {
			t.Fatal(err)
		}
		if err := st.Put(ctx, "workflow:cp1", []byte("v2"), summary("cp1", "wf", 1)); err != nil {
			t.Fatal(err)
		}
		data, err := st.Get(ctx, "workflow:cp1")
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "v2" {
			t.Errorf("expected v2, got %q", data)
		}
	})

	t.Run("list by prefix sorted by sequence", func(t *testing.T) {
		st := factory(t)
		for _, seq := range []uint64{3, 1, 2} {
			id := string(rune('a' + seq))
			if err := st.Put(ctx, "workflow:"+id, []byte("x"), summary(id, "wf", seq)); err != nil {
				t.Fatal(err)
			}
		}
		if err := st.Put(ctx, "other:z", []byte("x"), summary("z", "wf2", 9)); err != nil {
			t.Fatal(err)
		}

		summaries, err := st.List(ctx, "workflow:")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(summaries) != 3 {
			t.Fatalf("expected 3 summaries, got %d", len(summaries))
		}
		for i := 1; i < len(summaries); i++ {
			if summaries[i].Sequence < summaries[i-1].Sequence {
				t.Errorf("list not ascending: %+v", summaries)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		st := factory(t)
		if err := st.Put(ctx, "workflow:cp1", []byte("x"), summary("cp1", "wf", 1)); err != nil {
			t.Fatal(err)
		}
		if err := st.Delete(ctx, "workflow:cp1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := st.Get(ctx, "workflow:cp1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := st.Delete(ctx, "workflow:cp1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("latest by workflow", func(t *testing.T) {
		st := factory(t)
		for seq := uint64(1); seq <= 3; seq++ {
			id := string(rune('a' + seq))
			if err := st.Put(ctx, "workflow:"+id, []byte{byte('0' + seq)}, summary(id, "wf", seq)); err != nil {
				t.Fatal(err)
			}
		}
		data, err := st.GetLatest(ctx, "wf")
		if err != nil {
			t.Fatalf("GetLatest failed: %v", err)
		}
		if data[0] != '3' {
			t.Errorf("expected highest-sequence record, got %q", data)
		}

		if _, err := st.GetLatest(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown workflow, got %v", err)
		}
	})
}
