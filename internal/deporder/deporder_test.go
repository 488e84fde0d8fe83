package deporder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/opsforge/confsync/internal/referencer"
	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/store/memory"
	"github.com/opsforge/confsync/internal/types"
)

func dependent(key, master string) types.Item {
	return types.Item{Key: key, Type: types.ItemTypeDependent, MasterKey: master}
}

func TestLevelsInBundle(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	o := New(mem, referencer.New(mem), false)

	levels, err := o.Levels(ctx, map[string][]types.Item{
		"Template App": {
			{Key: "base"},
			dependent("child", "base"),
			dependent("grandchild", "child"),
		},
	})
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	want := map[string]int{"base": 0, "child": 1, "grandchild": 2}
	for key, lvl := range want {
		if got := levels["Template App"][key]; got != lvl {
			t.Errorf("%s: got level %d, want %d", key, got, lvl)
		}
	}
}

func TestLevelsCycle(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	o := New(mem, referencer.New(mem), false)

	_, err := o.Levels(ctx, map[string][]types.Item{
		"h": {
			dependent("a", "b"),
			dependent("b", "a"),
		},
	})
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("got %v, want ErrCircularDependency", err)
	}
}

func TestLevelsTooDeep(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	o := New(mem, referencer.New(mem), false)

	items := []types.Item{{Key: "i0"}}
	for i := 1; i <= MaxLevels+1; i++ {
		items = append(items, dependent(fmt.Sprintf("i%d", i), fmt.Sprintf("i%d", i-1)))
	}
	_, err := o.Levels(ctx, map[string][]types.Item{"h": items})
	if !errors.Is(err, ErrTooDeep) {
		t.Fatalf("got %v, want ErrTooDeep", err)
	}
}

func TestLevelsExternalMaster(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	rows, _ := mem.Items().Create(ctx, []store.ItemRecord{
		{HostID: tids[0], Key: "stored.base"},
	})
	_, _ = mem.Items().Create(ctx, []store.ItemRecord{
		{HostID: tids[0], Key: "stored.child", Type: types.ItemTypeDependent, MasterItemID: rows[0]},
	})

	ref := referencer.New(mem)
	ref.AddTemplateByHost("Template App")
	o := New(mem, ref, false)

	levels, err := o.Levels(ctx, map[string][]types.Item{
		"Template App": {
			dependent("new.leaf", "stored.child"),
		},
	})
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	// stored.base is 0, stored.child 1, so the bundle item lands at 2.
	if got := levels["Template App"]["new.leaf"]; got != 2 {
		t.Fatalf("got level %d, want 2", got)
	}
}

func TestLevelsDanglingStoredMaster(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	// The master row this id points at was deleted out of band.
	_, _ = mem.Items().Create(ctx, []store.ItemRecord{
		{HostID: tids[0], Key: "stored.child", Type: types.ItemTypeDependent, MasterItemID: "99999"},
	})

	ref := referencer.New(mem)
	ref.AddTemplateByHost("Template App")
	o := New(mem, ref, false)

	_, err := o.Levels(ctx, map[string][]types.Item{
		"Template App": {
			dependent("new.leaf", "stored.child"),
		},
	})
	if !errors.Is(err, ErrMasterNotFound) {
		t.Fatalf("got %v, want ErrMasterNotFound", err)
	}
	if errors.Is(err, ErrTooDeep) {
		t.Fatalf("dangling master misreported as depth: %v", err)
	}
}

func TestLevelsExternalMasterMissing(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	ref := referencer.New(mem)
	ref.AddTemplateByHost("Template App")
	o := New(mem, ref, false)

	_, err := o.Levels(ctx, map[string][]types.Item{
		"Template App": {
			dependent("orphan", "no.such.master"),
		},
	})
	if err == nil {
		t.Fatal("expected an error for a missing master")
	}
	if !strings.Contains(err.Error(), "no.such.master") {
		t.Fatalf("error %q does not name the missing master", err)
	}
}
