package engine

import "sort"

// registry is populated at init time by each adapter package's blank
// import side effect (see adapters/register.go) and treated as immutable
// read-only state afterwards — no lock is needed past startup, matching
// the "global state initialized once" design note.
var registry = map[string]Adapter{}

// Register adds an adapter under its own Tag(). Called from adapter package
// init functions; panics on a duplicate tag since that can only be a
// programming error caught at build time in practice.
func Register(a Adapter) {
	tag := a.Tag()
	if _, exists := registry[tag]; exists {
		panic("engine: duplicate adapter registration for tag " + tag)
	}
	registry[tag] = a
}

// Get looks up an adapter by tag.
func Get(tag string) (Adapter, error) {
	a, ok := registry[tag]
	if !ok {
		return nil, &ErrEngineUnknown{Tag: tag}
	}
	return a, nil
}

// Info is the catalog-facing projection of an adapter, returned by
// ListEngines().
type Info struct {
	Tag         string   `json:"tag"`
	DisplayName string   `json:"display_name"`
	Category    Category `json:"category"`
	DefaultPort int      `json:"default_port"`
	Supports    Supports `json:"supports"`
}

// List returns catalog info for every registered adapter, sorted by tag for
// a stable API response.
func List() []Info {
	infos := make([]Info, 0, len(registry))
	for _, a := range registry {
		infos = append(infos, Info{
			Tag:         a.Tag(),
			DisplayName: a.DisplayName(),
			Category:    a.Category(),
			DefaultPort: a.DefaultPort(),
			Supports:    a.Supports(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Tag < infos[j].Tag })
	return infos
}
