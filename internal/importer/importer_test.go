package importer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opsforge/confsync/internal/deporder"
	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/store/memory"
	"github.com/opsforge/confsync/internal/types"
)

func runImport(t *testing.T, s store.EntityStore, opts types.Options, b *types.Bundle) error {
	t.Helper()
	return New(s, opts, zerolog.Nop()).Import(context.Background(), b)
}

func templateBundle() *types.Bundle {
	b := types.NewBundle()
	b.Groups = []types.Group{{Name: "Applications"}}
	b.Templates = []types.Template{{
		UUID:   "u-tpl",
		Host:   "Template App",
		Name:   "App template",
		Groups: []string{"Applications"},
	}}
	b.Items["Template App"] = []types.Item{{
		UUID: "u-item",
		Key:  "cpu.load",
		Name: "CPU load",
		Type: types.ItemTypeAgent,
	}}
	return b
}

func TestImportCreatesTemplateAndItem(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	if err := runImport(t, mem, types.FullOptions(), templateBundle()); err != nil {
		t.Fatalf("import: %v", err)
	}

	tpls, _ := mem.Templates().Get(ctx, store.Query{Names: []string{"Template App"}})
	if len(tpls) != 1 {
		t.Fatalf("got %d templates, want 1", len(tpls))
	}
	if tpls[0].UUID != "u-tpl" || len(tpls[0].GroupIDs) != 1 {
		t.Fatalf("template not fully written: %+v", tpls[0])
	}

	items, _ := mem.Items().Get(ctx, store.Query{HostIDs: []string{tpls[0].ID}})
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Key != "cpu.load" || items[0].UUID != "u-item" {
		t.Fatalf("item not fully written: %+v", items[0])
	}
}

func TestImportIsIdempotent(t *testing.T) {
	mem := memory.New()

	if err := runImport(t, mem, types.FullOptions(), templateBundle()); err != nil {
		t.Fatalf("first import: %v", err)
	}
	first := mem.Snapshot()

	if err := runImport(t, mem, types.FullOptions(), templateBundle()); err != nil {
		t.Fatalf("second import: %v", err)
	}
	second := mem.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second import changed the store:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestDependentItemsWrittenMasterFirst(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	// Declared child first: ordering must come from leveling, not input
	// order.
	b.Items["Template App"] = []types.Item{
		{Key: "child", Type: types.ItemTypeDependent, MasterKey: "base"},
		{Key: "base"},
	}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}

	rows, _ := mem.Items().Get(ctx, store.Query{})
	byKey := map[string]store.ItemRecord{}
	for _, row := range rows {
		byKey[row.Key] = row
	}
	base, child := byKey["base"], byKey["child"]
	if base.ID == "" || child.ID == "" {
		t.Fatalf("items missing: %v", rows)
	}
	if child.MasterItemID != base.ID {
		t.Fatalf("child master id %q, want %q", child.MasterItemID, base.ID)
	}
	if child.ID < base.ID {
		t.Fatalf("child %q created before master %q", child.ID, base.ID)
	}
}

func TestStrayMasterReferenceStripped(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{
		{Key: "plain", Type: types.ItemTypeAgent, MasterKey: "ghost"},
	}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows, _ := mem.Items().Get(ctx, store.Query{})
	if len(rows) != 1 || rows[0].MasterItemID != "" {
		t.Fatalf("stray master reference survived: %+v", rows)
	}
}

func TestTriggerDependencyOnMissingTrigger(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{{Key: "cpu.load"}}
	b.Triggers = []types.Trigger{{
		UUID:       "u-t1",
		Name:       "T1",
		Expression: "last(/Template App/cpu.load)>5",
		Dependencies: []types.TriggerRef{{
			Name:       "T2",
			Expression: "last(/Template App/cpu.load)>9",
		}},
	}}

	err := runImport(t, mem, types.FullOptions(), b)
	if err == nil {
		t.Fatal("expected an error for the missing dependency target")
	}
	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("got %T (%v), want *ReferenceError", err, err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "T1") || !strings.Contains(msg, "T2") {
		t.Fatalf("error %q does not name both triggers", msg)
	}

	// T1 itself was written in the first pass, without dependencies.
	rows, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"T1"}})
	if len(rows) != 1 {
		t.Fatalf("got %d T1 rows, want 1", len(rows))
	}
	if len(rows[0].DependsOn) != 0 {
		t.Fatalf("dependencies written despite the error: %+v", rows[0])
	}
}

func TestTriggerDependencyCycleRejected(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{{Key: "cpu.load"}}
	t1 := types.TriggerRef{Name: "T1", Expression: "last(/Template App/cpu.load)>5"}
	t2 := types.TriggerRef{Name: "T2", Expression: "last(/Template App/cpu.load)>9"}
	b.Triggers = []types.Trigger{
		{Name: t1.Name, Expression: t1.Expression, Dependencies: []types.TriggerRef{t2}},
		{Name: t2.Name, Expression: t2.Expression, Dependencies: []types.TriggerRef{t1}},
	}

	err := runImport(t, mem, types.FullOptions(), b)
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("got %v, want ErrDependencyCycle", err)
	}

	// Both rows exist from the first pass; the dependency pass committed
	// nothing.
	rows, _ := mem.Triggers().Get(ctx, store.Query{})
	if len(rows) != 2 {
		t.Fatalf("got %d triggers, want 2", len(rows))
	}
	for _, row := range rows {
		if len(row.DependsOn) != 0 {
			t.Fatalf("cycle persisted on %q: %v", row.Name, row.DependsOn)
		}
	}
}

func TestTriggerDependencyCycleThroughStore(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	// First import establishes T2 depending on T1.
	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{{Key: "cpu.load"}}
	t1 := types.TriggerRef{Name: "T1", Expression: "last(/Template App/cpu.load)>5"}
	t2 := types.TriggerRef{Name: "T2", Expression: "last(/Template App/cpu.load)>9"}
	b.Triggers = []types.Trigger{
		{Name: t1.Name, Expression: t1.Expression},
		{Name: t2.Name, Expression: t2.Expression, Dependencies: []types.TriggerRef{t1}},
	}
	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Re-importing only T1, now depending on T2, would close the loop
	// through the stored row.
	b2 := types.NewBundle()
	b2.Templates = []types.Template{{Host: "Template App"}}
	b2.Items["Template App"] = []types.Item{{Key: "cpu.load"}}
	b2.Triggers = []types.Trigger{
		{Name: t1.Name, Expression: t1.Expression, Dependencies: []types.TriggerRef{t2}},
	}
	err := runImport(t, mem, types.CreateUpdateOptions(), b2)
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("got %v, want ErrDependencyCycle", err)
	}
	rows, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"T1"}})
	if len(rows) != 1 || len(rows[0].DependsOn) != 0 {
		t.Fatalf("cycle persisted: %+v", rows)
	}
}

func TestTriggerDependencyResolved(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{{Key: "cpu.load"}}
	b.Triggers = []types.Trigger{
		{
			Name:       "T1",
			Expression: "last(/Template App/cpu.load)>5",
			Dependencies: []types.TriggerRef{{
				Name:       "T2",
				Expression: "last(/Template App/cpu.load)>9",
			}},
		},
		{
			Name:       "T2",
			Expression: "last(/Template App/cpu.load)>9",
		},
	}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}

	t1, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"T1"}})
	t2, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"T2"}})
	if len(t1) != 1 || len(t2) != 1 {
		t.Fatalf("triggers missing: %v %v", t1, t2)
	}
	if len(t1[0].DependsOn) != 1 || t1[0].DependsOn[0] != t2[0].ID {
		t.Fatalf("T1 depends on %v, want [%s]", t1[0].DependsOn, t2[0].ID)
	}
}

func TestHostTriggerDropsUUID(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Groups = []types.Group{{Name: "Servers"}}
	b.Hosts = []types.Host{{Host: "web01", Groups: []string{"Servers"}}}
	b.Items["web01"] = []types.Item{{Key: "cpu.load"}}
	b.Triggers = []types.Trigger{{
		UUID:       "u-host-trigger",
		Name:       "High load",
		Expression: "last(/web01/cpu.load)>5",
	}}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"High load"}})
	if len(rows) != 1 {
		t.Fatalf("got %d triggers, want 1", len(rows))
	}
	if rows[0].UUID != "" {
		t.Fatalf("host trigger kept uuid %q", rows[0].UUID)
	}
}

func TestUnprocessedOwnerChildrenSkipped(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	opts := types.FullOptions()
	opts.Templates.CreateMissing = false

	// Template does not exist and may not be created; its items must be
	// skipped without an error.
	if err := runImport(t, mem, opts, templateBundle()); err != nil {
		t.Fatalf("import: %v", err)
	}
	items, _ := mem.Items().Get(ctx, store.Query{})
	if len(items) != 0 {
		t.Fatalf("items written for an unprocessed owner: %v", items)
	}
}

func TestCreateMissingOffSkipsNewItems(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	opts := types.FullOptions()
	opts.Items.CreateMissing = false
	opts.Items.DeleteMissing = false

	if err := runImport(t, mem, opts, templateBundle()); err != nil {
		t.Fatalf("import: %v", err)
	}
	items, _ := mem.Items().Get(ctx, store.Query{})
	if len(items) != 0 {
		t.Fatalf("items created despite create_missing=false: %v", items)
	}
	tpls, _ := mem.Templates().Get(ctx, store.Query{Names: []string{"Template App"}})
	if len(tpls) != 1 {
		t.Fatal("template itself should still be created")
	}
}

func TestDeleteMissingItems(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	_, _ = mem.Items().Create(ctx, []store.ItemRecord{
		{HostID: tids[0], Key: "cpu.load"},
		{HostID: tids[0], Key: "stale.metric"},
	})

	if err := runImport(t, mem, types.FullOptions(), templateBundle()); err != nil {
		t.Fatalf("import: %v", err)
	}

	rows, _ := mem.Items().Get(ctx, store.Query{HostIDs: tids})
	if len(rows) != 1 || rows[0].Key != "cpu.load" {
		t.Fatalf("got %v, want only cpu.load", rows)
	}
}

func TestDeleteMissingSkipsSharedTriggers(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	tids, _ := mem.Templates().Create(ctx, []store.TemplateRecord{{Host: "Template App"}})
	hids, _ := mem.Hosts().Create(ctx, []store.HostRecord{{Host: "outsider"}})
	_, _ = mem.Items().Create(ctx, []store.ItemRecord{{HostID: tids[0], Key: "cpu.load"}})
	_, _ = mem.Triggers().Create(ctx, []store.TriggerRecord{
		{
			Name:       "Shared",
			Expression: "e-shared",
			HostIDs:    []string{tids[0], hids[0]},
		},
		{
			Name:       "Owned",
			Expression: "e-owned",
			HostIDs:    []string{tids[0]},
		},
	})

	if err := runImport(t, mem, types.FullOptions(), templateBundle()); err != nil {
		t.Fatalf("import: %v", err)
	}

	rows, _ := mem.Triggers().Get(ctx, store.Query{})
	if len(rows) != 1 || rows[0].Name != "Shared" {
		t.Fatalf("got %v, want only the shared trigger kept", rows)
	}
}

func TestCyclicItemsAbortBeforeWrites(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{{Host: "Template App"}}
	b.Items["Template App"] = []types.Item{
		{Key: "a", Type: types.ItemTypeDependent, MasterKey: "b"},
		{Key: "b", Type: types.ItemTypeDependent, MasterKey: "a"},
	}

	err := runImport(t, mem, types.FullOptions(), b)
	if !errors.Is(err, deporder.ErrCircularDependency) {
		t.Fatalf("got %v, want ErrCircularDependency", err)
	}
	items, _ := mem.Items().Get(ctx, store.Query{})
	if len(items) != 0 {
		t.Fatalf("items written despite the cycle: %v", items)
	}
}

func TestExtensionFieldsPersisted(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := templateBundle()
	b.Templates[0].Extra = map[string]string{"vendor_name": "Acme"}
	b.Graphs = []types.Graph{{
		UUID:  "u-graph",
		Name:  "CPU",
		Items: []types.GraphItem{{Item: types.ItemRef{Host: "Template App", Key: "cpu.load"}}},
		Extra: map[string]string{"width": "900", "height": "200"},
	}}
	b.HTTPTests["Template App"] = []types.HTTPTest{{
		UUID: "u-web",
		Name: "Availability",
		Steps: []types.HTTPStep{{
			Name:  "front page",
			URL:   "http://localhost",
			Extra: map[string]string{"follow_redirects": "1"},
		}},
		Extra: map[string]string{"delay": "5m"},
	}}
	b.DiscoveryRules["Template App"] = []types.DiscoveryRule{{
		UUID: "u-rule",
		Key:  "net.if.discovery",
		Name: "Interfaces",
		HostPrototypes: []types.HostPrototype{{
			UUID:            "u-proto",
			Host:            "{#IFNAME} host",
			GroupLinks:      []string{"Applications"},
			GroupPrototypes: []string{"{#IFNAME} group"},
		}},
	}}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}

	tpls, _ := mem.Templates().Get(ctx, store.Query{Names: []string{"Template App"}})
	if len(tpls) != 1 || tpls[0].Fields["vendor_name"] != "Acme" {
		t.Fatalf("template fields lost: %+v", tpls)
	}
	graphs, _ := mem.Graphs().Get(ctx, store.Query{Names: []string{"CPU"}})
	if len(graphs) != 1 || graphs[0].Fields["width"] != "900" {
		t.Fatalf("graph fields lost: %+v", graphs)
	}
	webs, _ := mem.HTTPTests().Get(ctx, store.Query{Names: []string{"Availability"}})
	if len(webs) != 1 || webs[0].Fields["delay"] != "5m" {
		t.Fatalf("web scenario fields lost: %+v", webs)
	}
	if webs[0].Steps[0].Fields["follow_redirects"] != "1" {
		t.Fatalf("step fields lost: %+v", webs[0].Steps)
	}
	protos, _ := mem.HostPrototypes().Get(ctx, store.Query{})
	if len(protos) != 1 || !reflect.DeepEqual(protos[0].GroupPrototypes, []string{"{#IFNAME} group"}) {
		t.Fatalf("group prototypes lost: %+v", protos)
	}
}

func TestTemplateFieldsSurviveLinkage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	b := types.NewBundle()
	b.Templates = []types.Template{
		{Host: "Template App", Extra: map[string]string{"vendor_name": "Acme"}, Linked: []string{"Template Base"}},
		{Host: "Template Base"},
	}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows, _ := mem.Templates().Get(ctx, store.Query{Names: []string{"Template App"}})
	if len(rows) != 1 {
		t.Fatalf("got %d templates, want 1", len(rows))
	}
	if len(rows[0].TemplateIDs) != 1 {
		t.Fatalf("linkage not applied: %+v", rows[0])
	}
	if rows[0].Fields["vendor_name"] != "Acme" {
		t.Fatalf("linkage update wiped the extension fields: %+v", rows[0])
	}
}

func TestMapLinkTriggersResolved(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	ref := types.TriggerRef{Name: "T1", Expression: "last(/Template App/cpu.load)>5"}
	b := templateBundle()
	b.Triggers = []types.Trigger{{UUID: "u-trig", Name: ref.Name, Expression: ref.Expression}}
	b.Maps = []types.Map{{
		Name:  "Core",
		Links: []types.MapLink{{Triggers: []types.TriggerRef{ref}}},
		Extra: map[string]string{"width": "680"},
	}}

	if err := runImport(t, mem, types.FullOptions(), b); err != nil {
		t.Fatalf("import: %v", err)
	}

	trig, _ := mem.Triggers().Get(ctx, store.Query{Names: []string{"T1"}})
	maps, _ := mem.Maps().Get(ctx, store.Query{Names: []string{"Core"}})
	if len(trig) != 1 || len(maps) != 1 {
		t.Fatalf("rows missing: %v %v", trig, maps)
	}
	if len(maps[0].Links) != 1 || !reflect.DeepEqual(maps[0].Links[0].TriggerIDs, []string{trig[0].ID}) {
		t.Fatalf("link triggers %v, want [%s]", maps[0].Links, trig[0].ID)
	}
	if maps[0].Fields["width"] != "680" {
		t.Fatalf("map fields lost: %+v", maps[0])
	}
}

func TestTemplateLinkage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	linkedIDs, _ := mem.Templates().Create(ctx, []store.TemplateRecord{
		{Host: "Template Old"},
		{Host: "Template New"},
	})
	_, _ = mem.Hosts().Create(ctx, []store.HostRecord{{
		Host:        "web01",
		TemplateIDs: []string{linkedIDs[0]},
	}})

	b := types.NewBundle()
	b.Hosts = []types.Host{{Host: "web01", Linked: []string{"Template New"}}}

	t.Run("create and delete", func(t *testing.T) {
		s := memory.FromState(mem.Snapshot())
		if err := runImport(t, s, types.FullOptions(), b); err != nil {
			t.Fatalf("import: %v", err)
		}
		rows, _ := s.Hosts().Get(ctx, store.Query{Names: []string{"web01"}})
		if !reflect.DeepEqual(rows[0].TemplateIDs, []string{linkedIDs[1]}) {
			t.Fatalf("got linkage %v, want only Template New", rows[0].TemplateIDs)
		}
	})

	t.Run("create only", func(t *testing.T) {
		s := memory.FromState(mem.Snapshot())
		opts := types.FullOptions()
		opts.TemplateLinkage.DeleteMissing = false
		if err := runImport(t, s, opts, b); err != nil {
			t.Fatalf("import: %v", err)
		}
		rows, _ := s.Hosts().Get(ctx, store.Query{Names: []string{"web01"}})
		if len(rows[0].TemplateIDs) != 2 {
			t.Fatalf("got linkage %v, want the old link kept", rows[0].TemplateIDs)
		}
	})
}
