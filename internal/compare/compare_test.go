package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/confsync/internal/types"
)

func tpl(uuid, host string, extra Object) Object {
	obj := Object{"uuid": uuid, "template": host}
	for k, v := range extra {
		obj[k] = v
	}
	return obj
}

func TestCompareAddedRemovedUpdated(t *testing.T) {
	before := Object{
		"templates": []Object{
			tpl("u-keep", "Template Keep", Object{"name": "old name"}),
			tpl("u-gone", "Template Gone", nil),
		},
	}
	after := Object{
		"templates": []Object{
			tpl("u-keep", "Template Keep", Object{"name": "new name"}),
			tpl("u-new", "Template New", nil),
		},
	}

	diff := New(types.FullOptions()).Compare(before, after)
	require.Contains(t, diff, "templates")
	node := diff["templates"].(Node)

	added := node["added"].([]Object)
	require.Len(t, added, 1)
	assert.Equal(t, "u-new", added[0]["uuid"])

	removed := node["removed"].([]Object)
	require.Len(t, removed, 1)
	assert.Equal(t, "u-gone", removed[0]["uuid"])

	updated := node["updated"].([]Node)
	require.Len(t, updated, 1)
	assert.Equal(t, "old name", updated[0]["before"].(Object)["name"])
	assert.Equal(t, "new name", updated[0]["after"].(Object)["name"])
}

func TestCompareEmptyWhenIdentical(t *testing.T) {
	tree := Object{
		"templates": []Object{tpl("u-1", "Template App", Object{
			"items": []Object{{"uuid": "u-i", "key": "cpu.load"}},
		})},
	}
	diff := New(types.FullOptions()).Compare(tree, tree)
	assert.Empty(t, diff)
}

func TestComparePolicySuppression(t *testing.T) {
	before := Object{"templates": []Object{tpl("u-1", "Template App", Object{"name": "old"})}}
	after := Object{
		"templates": []Object{
			tpl("u-1", "Template App", Object{"name": "new"}),
			tpl("u-2", "Template Added", nil),
		},
	}

	opts := types.FullOptions()
	opts.Templates.UpdateExisting = false
	opts.Templates.CreateMissing = false
	diff := New(opts).Compare(before, after)

	// Neither the blocked update nor the blocked creation shows.
	assert.Empty(t, diff)
}

func TestCompareNestedChildren(t *testing.T) {
	before := Object{
		"templates": []Object{tpl("u-1", "Template App", Object{
			"items": []Object{{"uuid": "u-old", "key": "stale.metric"}},
		})},
	}
	after := Object{
		"templates": []Object{tpl("u-1", "Template App", Object{
			"items": []Object{{"uuid": "u-new", "key": "cpu.load"}},
		})},
	}

	diff := New(types.FullOptions()).Compare(before, after)
	node := diff["templates"].(Node)
	updated := node["updated"].([]Node)
	require.Len(t, updated, 1)

	// The template's own fields are unchanged, children carry the diff.
	assert.Equal(t, updated[0]["before"], updated[0]["after"])
	items := updated[0]["items"].(Node)
	assert.Len(t, items["added"], 1)
	assert.Len(t, items["removed"], 1)
}

func TestCompareLinkageFlags(t *testing.T) {
	before := Object{
		"templates": []Object{tpl("u-1", "Template App", Object{
			"templates": []any{"Template Old"},
		})},
	}
	after := Object{
		"templates": []Object{tpl("u-1", "Template App", Object{
			"templates": []any{"Template New"},
		})},
	}

	t.Run("full linkage swaps", func(t *testing.T) {
		diff := New(types.FullOptions()).Compare(before, after)
		updated := diff["templates"].(Node)["updated"].([]Node)
		require.Len(t, updated, 1)
		assert.Equal(t, []string{"Template New"}, updated[0]["after"].(Object)["templates"])
	})

	t.Run("no delete keeps old link", func(t *testing.T) {
		opts := types.FullOptions()
		opts.TemplateLinkage.DeleteMissing = false
		diff := New(opts).Compare(before, after)
		updated := diff["templates"].(Node)["updated"].([]Node)
		require.Len(t, updated, 1)
		assert.ElementsMatch(t,
			[]string{"Template Old", "Template New"},
			updated[0]["after"].(Object)["templates"])
	})

	t.Run("no flags means no change", func(t *testing.T) {
		opts := types.FullOptions()
		opts.TemplateLinkage = types.Linkage{}
		diff := New(opts).Compare(before, after)
		assert.Empty(t, diff)
	})
}
