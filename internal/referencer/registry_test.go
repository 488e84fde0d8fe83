package referencer

import (
	"context"
	"testing"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/store/memory"
	"github.com/opsforge/confsync/internal/types"
)

// countingStore counts Get calls per kind so tests can assert that
// lookups are batched.
type countingStore struct {
	store.EntityStore
	gets map[string]int
}

func newCountingStore(inner store.EntityStore) *countingStore {
	return &countingStore{EntityStore: inner, gets: map[string]int{}}
}

func (c *countingStore) Groups() store.Service[store.GroupRecord] {
	return countingService[store.GroupRecord]{c.EntityStore.Groups(), c.gets, "groups"}
}

func (c *countingStore) Templates() store.Service[store.TemplateRecord] {
	return countingService[store.TemplateRecord]{c.EntityStore.Templates(), c.gets, "templates"}
}

func (c *countingStore) Items() store.Service[store.ItemRecord] {
	return countingService[store.ItemRecord]{c.EntityStore.Items(), c.gets, "items"}
}

type countingService[R any] struct {
	store.Service[R]
	gets map[string]int
	kind string
}

func (c countingService[R]) Get(ctx context.Context, q store.Query) ([]R, error) {
	c.gets[c.kind]++
	return c.Service.Get(ctx, q)
}

func TestGroupLookupIsBatched(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, _ = mem.Groups().Create(ctx, []store.GroupRecord{
		{Name: "Linux servers"},
		{Name: "Databases"},
	})
	cs := newCountingStore(mem)
	r := New(cs)

	r.AddGroupByName("Linux servers")
	r.AddGroupByName("Databases")

	for _, name := range []string{"Linux servers", "Databases"} {
		id, err := r.FindGroupIDByName(ctx, name)
		if err != nil {
			t.Fatalf("find %q: %v", name, err)
		}
		if id == "" {
			t.Fatalf("group %q not resolved", name)
		}
	}
	if cs.gets["groups"] != 1 {
		t.Fatalf("got %d group fetches, want 1", cs.gets["groups"])
	}
}

func TestLateRegistrationReloads(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, _ = mem.Groups().Create(ctx, []store.GroupRecord{
		{Name: "Linux servers"},
		{Name: "Databases"},
	})
	cs := newCountingStore(mem)
	r := New(cs)

	r.AddGroupByName("Linux servers")
	if _, err := r.FindGroupIDByName(ctx, "Linux servers"); err != nil {
		t.Fatalf("find: %v", err)
	}

	// A key registered after the load must still resolve.
	r.AddGroupByName("Databases")
	id, err := r.FindGroupIDByName(ctx, "Databases")
	if err != nil {
		t.Fatalf("find after late registration: %v", err)
	}
	if id == "" {
		t.Fatal("late-registered group not resolved")
	}
	if cs.gets["groups"] != 2 {
		t.Fatalf("got %d group fetches, want 2", cs.gets["groups"])
	}
}

func TestSetDbAvoidsReload(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cs := newCountingStore(mem)
	r := New(cs)

	r.AddGroupByName("Linux servers")
	if id, err := r.FindGroupIDByName(ctx, "Linux servers"); err != nil || id != "" {
		t.Fatalf("got (%q, %v), want empty id for missing group", id, err)
	}

	r.SetDbGroup("Linux servers", "u-g", "10001")
	id, err := r.FindGroupIDByName(ctx, "Linux servers")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if id != "10001" {
		t.Fatalf("got id %q, want 10001", id)
	}
	if id, _ := r.FindGroupIDByUUID(ctx, "u-g"); id != "10001" {
		t.Fatalf("uuid lookup got %q, want 10001", id)
	}
	if cs.gets["groups"] != 1 {
		t.Fatalf("got %d group fetches, want 1", cs.gets["groups"])
	}
}

func TestTemplateOrHostPrefersTemplate(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Shared name"}})
	_, _ = mem.Hosts().Create(ctx, []store.HostRecord{{Host: "Shared name"}})
	r := New(mem)

	r.AddTemplateByHost("Shared name")
	r.AddHostByHost("Shared name")

	id, err := r.FindTemplateOrHostIDByHost(ctx, "Shared name")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if id != tids[0] {
		t.Fatalf("got %q, want template id %q", id, tids[0])
	}
}

func TestItemResolution(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	_, _ = mem.Items().Create(ctx, []store.ItemRecord{
		{HostID: tids[0], Key: "cpu.load", UUID: "u-cpu"},
	})
	r := New(mem)

	r.AddItem("Template App", types.Item{Key: "cpu.load", UUID: "u-cpu"})

	if id, err := r.FindItemIDByUUID(ctx, "u-cpu"); err != nil || id == "" {
		t.Fatalf("uuid lookup got (%q, %v)", id, err)
	}
	if id, err := r.FindItemIDByKey(ctx, "Template App", "cpu.load"); err != nil || id == "" {
		t.Fatalf("key lookup got (%q, %v)", id, err)
	}
	if id, err := r.FindItemIDByKey(ctx, "Template App", "missing.key"); err != nil || id != "" {
		t.Fatalf("missing key got (%q, %v), want empty", id, err)
	}
}

func TestRefreshPicksUpNewRows(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	r := New(mem)

	r.AddItemRef("Template App", "cpu.load")
	if id, _ := r.FindItemIDByKey(ctx, "Template App", "cpu.load"); id != "" {
		t.Fatalf("got %q before the item exists", id)
	}

	_, _ = mem.Items().Create(ctx, []store.ItemRecord{{HostID: tids[0], Key: "cpu.load"}})
	r.RefreshItems()

	id, err := r.FindItemIDByKey(ctx, "Template App", "cpu.load")
	if err != nil {
		t.Fatalf("find after refresh: %v", err)
	}
	if id == "" {
		t.Fatal("refresh did not pick up the new row")
	}
}
