package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/opsforge/confsync/internal/store"
)

func TestCreateAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	ids, err := s.Groups().Create(ctx, []store.GroupRecord{
		{Name: "Linux servers"},
		{Name: "Databases"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if ids[0] == ids[1] {
		t.Fatalf("duplicate ids assigned: %v", ids)
	}
}

func TestGetFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Items().Create(ctx, []store.ItemRecord{
		{HostID: "h1", Key: "cpu.load", UUID: "u-cpu"},
		{HostID: "h1", Key: "mem.free"},
		{HostID: "h2", Key: "cpu.load"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		q    store.Query
		want int
	}{
		{"by host", store.Query{HostIDs: []string{"h1"}}, 2},
		{"by name", store.Query{Names: []string{"cpu.load"}}, 2},
		{"by host and name", store.Query{HostIDs: []string{"h1"}, Names: []string{"cpu.load"}}, 1},
		{"by uuid", store.Query{UUIDs: []string{"u-cpu"}}, 1},
		{"uuid and name AND miss", store.Query{UUIDs: []string{"u-cpu"}, Names: []string{"mem.free"}}, 0},
		{"uuid or name", store.Query{UUIDs: []string{"u-cpu"}, Names: []string{"mem.free"}, SearchByAny: true}, 2},
		{"no filter returns all", store.Query{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Items().Get(ctx, tt.q)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}
}

func TestInheritedFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Items().Create(ctx, []store.ItemRecord{
		{HostID: "h1", Key: "direct"},
		{HostID: "h1", Key: "templated", Inherited: true},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	direct := false
	rows, err := s.Items().Get(ctx, store.Query{HostIDs: []string{"h1"}, Inherited: &direct})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "direct" {
		t.Fatalf("got %v, want only the direct item", rows)
	}
}

func TestUpdateMergePreservesUntouchedFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	ids, err := s.Templates().Create(ctx, []store.TemplateRecord{{
		UUID:        "u-tpl",
		Host:        "Template App",
		GroupIDs:    []string{"g1"},
		TemplateIDs: []string{"t2"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// nil slices leave linkage and groups alone.
	_, err = s.Templates().Update(ctx, []store.TemplateRecord{{ID: ids[0], Host: "Template App"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, _ := s.Templates().Get(ctx, store.Query{IDs: ids})
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	got := rows[0]
	if got.UUID != "u-tpl" || len(got.GroupIDs) != 1 || len(got.TemplateIDs) != 1 {
		t.Fatalf("untouched fields were lost: %+v", got)
	}

	// A non-nil empty slice clears.
	_, err = s.Templates().Update(ctx, []store.TemplateRecord{{
		ID: ids[0], Host: "Template App", TemplateIDs: []string{},
	}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, _ = s.Templates().Get(ctx, store.Query{IDs: ids})
	if len(rows[0].TemplateIDs) != 0 {
		t.Fatalf("explicit empty slice did not clear linkage: %+v", rows[0])
	}
	if len(rows[0].GroupIDs) != 1 {
		t.Fatalf("groups lost on linkage clear: %+v", rows[0])
	}
}

func TestUpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Groups().Update(ctx, []store.GroupRecord{{ID: "99999", Name: "ghost"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	ids, _ := s.Triggers().Create(ctx, []store.TriggerRecord{
		{Name: "T1", Expression: "e1"},
		{Name: "T2", Expression: "e2"},
	})
	if err := s.Triggers().Delete(ctx, ids[:1]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _ := s.Triggers().Get(ctx, store.Query{})
	if len(rows) != 1 || rows[0].Name != "T2" {
		t.Fatalf("got %v, want only T2", rows)
	}

	if err := s.Triggers().Delete(ctx, []string{"99999"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	gids, _ := s.Groups().Create(ctx, []store.GroupRecord{{Name: "Linux servers", UUID: "u-g"}})
	tids, _ := s.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App", GroupIDs: gids}})
	_, _ = s.Items().Create(ctx, []store.ItemRecord{{HostID: tids[0], Key: "cpu.load"}})

	restored := FromState(s.Snapshot())

	rows, err := restored.Items().Get(ctx, store.Query{HostIDs: tids})
	if err != nil {
		t.Fatalf("get after restore: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "cpu.load" {
		t.Fatalf("items lost in round trip: %v", rows)
	}

	// ids keep counting past the restored rows.
	newIDs, err := restored.Groups().Create(ctx, []store.GroupRecord{{Name: "Databases"}})
	if err != nil {
		t.Fatalf("create after restore: %v", err)
	}
	existing, _ := restored.Groups().Get(ctx, store.Query{Names: []string{"Linux servers"}})
	if newIDs[0] == existing[0].ID {
		t.Fatalf("restored store reissued id %s", newIDs[0])
	}
}
