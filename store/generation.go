package store

// TagPrefix is the common prefix of every generation tag this engine owns.
const TagPrefix = "aura"

// Generation names the three cache stores that are live for one deployed
// version: the combined/legacy store, the static-asset store and the
// dynamic-response store. Every tag outside a Generation is garbage once
// that generation activates.
type Generation struct {
	// Version is the build/cache version marker embedded in each tag.
	Version string

	// Combined is the tag of the combined/legacy store.
	Combined string

	// Static is the tag of the static-asset store.
	Static string

	// Dynamic is the tag of the dynamic same-origin response store.
	Dynamic string
}

// NewGeneration derives the three live tags for a version.
func NewGeneration(version string) Generation {
	return Generation{
		Version:  version,
		Combined: TagPrefix + "-" + version,
		Static:   TagPrefix + "-static-" + version,
		Dynamic:  TagPrefix + "-dynamic-" + version,
	}
}

// Tags returns the three live tags in a fixed order.
func (g Generation) Tags() []string {
	return []string{g.Combined, g.Static, g.Dynamic}
}

// Keep reports whether a tag belongs to this generation and must survive
// activation cleanup.
func (g Generation) Keep(tag string) bool {
	return tag == g.Combined || tag == g.Static || tag == g.Dynamic
}
