package adapter

import (
	"strings"
	"testing"

	"github.com/opsforge/confsync/internal/types"
)

func TestFromMapTemplateTree(t *testing.T) {
	raw := map[string]any{
		"export": map[string]any{
			"groups": []any{
				map[string]any{"uuid": "3f6f2fd5-9a6c-4a7b-8f63-3aaedc8e0b7a", "name": "Applications"},
			},
			"templates": []any{
				map[string]any{
					"uuid":     "6dbcc046-5411-4a4a-92dd-b6777ec3e7b2",
					"template": "Template App",
					"name":     "App template",
					"groups":   []any{map[string]any{"name": "Applications"}},
					"templates": []any{
						map[string]any{"name": "Template Base"},
					},
					"items": []any{
						map[string]any{
							"key_":     "cpu.load",
							"name":     "CPU load",
							"type":     "agent",
							"valuemap": map[string]any{"name": "Service state"},
							"delay":    "1m",
						},
					},
					"valuemaps": []any{
						map[string]any{
							"name": "Service state",
							"mappings": []any{
								map[string]any{"value": "0", "newvalue": "Down"},
							},
						},
					},
					"httptests": []any{
						map[string]any{
							"name": "Availability",
							"steps": []any{
								map[string]any{"name": "front page", "url": "http://localhost", "retries": 3},
							},
						},
					},
				},
			},
		},
	}

	b, err := FromMap(raw)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}

	if len(b.Groups) != 1 || b.Groups[0].Name != "Applications" {
		t.Fatalf("groups: %+v", b.Groups)
	}
	if len(b.Templates) != 1 {
		t.Fatalf("templates: %+v", b.Templates)
	}
	tpl := b.Templates[0]
	if tpl.Host != "Template App" || len(tpl.Linked) != 1 || tpl.Linked[0] != "Template Base" {
		t.Fatalf("template: %+v", tpl)
	}

	items := b.Items["Template App"]
	if len(items) != 1 {
		t.Fatalf("items: %+v", b.Items)
	}
	it := items[0]
	if it.Key != "cpu.load" {
		t.Errorf("key_ not normalized: %+v", it)
	}
	if it.ValueMap != "Service state" {
		t.Errorf("valuemap reference not unwrapped: %+v", it)
	}
	if it.Extra["delay"] != "1m" {
		t.Errorf("unmapped scalar lost: %+v", it.Extra)
	}

	steps := b.HTTPTests["Template App"][0].Steps
	if len(steps) != 1 || steps[0].Attempts != 3 {
		t.Errorf("retries not normalized to attempts: %+v", steps)
	}
}

func TestFromMapRejectsBadUUID(t *testing.T) {
	raw := map[string]any{
		"templates": []any{
			map[string]any{"uuid": "not-a-uuid", "template": "Template App"},
		},
	}
	_, err := FromMap(raw)
	if err == nil {
		t.Fatal("expected an error for a malformed uuid")
	}
	if !strings.Contains(err.Error(), "not-a-uuid") {
		t.Fatalf("error %q does not name the bad uuid", err)
	}
}

func TestFromMapHTTPAgentHeaders(t *testing.T) {
	raw := map[string]any{
		"hosts": []any{
			map[string]any{
				"host": "web01",
				"items": []any{
					map[string]any{
						"key":  "page.probe",
						"type": "http_agent",
						"headers": []any{
							map[string]any{"name": "Authorization", "value": "Bearer x"},
							map[string]any{"name": "Accept", "value": "application/json"},
						},
					},
				},
			},
		},
	}

	b, err := FromMap(raw)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	it := b.Items["web01"][0]
	want := "Authorization: Bearer x\nAccept: application/json\n"
	if it.Extra["headers"] != want {
		t.Fatalf("headers folded to %q, want %q", it.Extra["headers"], want)
	}
}

func TestFromMapDependencyAndMaster(t *testing.T) {
	raw := map[string]any{
		"templates": []any{
			map[string]any{
				"template": "Template App",
				"items": []any{
					map[string]any{
						"key":         "child",
						"type":        "dependent",
						"master_item": map[string]any{"key": "base"},
					},
				},
			},
		},
		"triggers": []any{
			map[string]any{
				"name":       "T1",
				"expression": "last(/Template App/child)>0",
				"dependencies": []any{
					map[string]any{"name": "T2", "expression": "last(/Template App/child)>9"},
				},
			},
		},
	}

	b, err := FromMap(raw)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	it := b.Items["Template App"][0]
	if it.Type != types.ItemTypeDependent || it.MasterKey != "base" {
		t.Fatalf("master reference not decoded: %+v", it)
	}
	if len(b.Triggers) != 1 || len(b.Triggers[0].Dependencies) != 1 {
		t.Fatalf("triggers: %+v", b.Triggers)
	}
	if b.Triggers[0].Dependencies[0].Name != "T2" {
		t.Fatalf("dependency: %+v", b.Triggers[0].Dependencies)
	}
}

func TestFromMapItemWithoutKey(t *testing.T) {
	raw := map[string]any{
		"hosts": []any{
			map[string]any{
				"host":  "web01",
				"items": []any{map[string]any{"name": "keyless"}},
			},
		},
	}
	if _, err := FromMap(raw); err == nil {
		t.Fatal("expected an error for an item without a key")
	}
}
