package referencer

// cache is one kind's lazily loaded lookup index. Natural keys and UUIDs
// are registered up front; the owning Registry performs a single batched
// store query the first time a lookup needs the kind, and again after an
// invalidation. Registering a new key after a load marks the cache dirty
// so the next lookup reloads.
type cache[K comparable] struct {
	keys   map[K]struct{}
	uuids  map[string]struct{}
	ids    map[K]string
	byUUID map[string]string
	loaded bool
}

func newCache[K comparable]() *cache[K] {
	return &cache[K]{keys: map[K]struct{}{}, uuids: map[string]struct{}{}}
}

func (c *cache[K]) add(k K) {
	if _, ok := c.keys[k]; !ok {
		c.keys[k] = struct{}{}
		c.loaded = false
	}
}

func (c *cache[K]) addUUID(u string) {
	if u == "" {
		return
	}
	if _, ok := c.uuids[u]; !ok {
		c.uuids[u] = struct{}{}
		c.loaded = false
	}
}

// set records a freshly written row without invalidating the cache.
func (c *cache[K]) set(k K, uuid, id string) {
	c.keys[k] = struct{}{}
	if c.ids == nil {
		c.ids = map[K]string{}
		c.byUUID = map[string]string{}
	}
	c.ids[k] = id
	if uuid != "" {
		c.uuids[uuid] = struct{}{}
		c.byUUID[uuid] = id
	}
}

// invalidate drops loaded rows but keeps the registered keys, forcing a
// reload on the next lookup.
func (c *cache[K]) invalidate() {
	c.loaded = false
	c.ids = nil
	c.byUUID = nil
}

// reset prepares the cache for a fresh load.
func (c *cache[K]) reset() {
	c.ids = map[K]string{}
	c.byUUID = map[string]string{}
	c.loaded = true
}

func (c *cache[K]) empty() bool {
	return len(c.keys) == 0 && len(c.uuids) == 0
}

func setList[K comparable](m map[K]struct{}) []K {
	if len(m) == 0 {
		return nil
	}
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
