package scenario

import (
	"sort"

	"github.com/entrhq/nwregress/pkg/config"
)

// Constructor builds a scenario from a validated config.
type Constructor func(cfg *config.Config) Scenario

var registry = map[string]Constructor{
	Issue4269Name: Issue4269,
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, bool) {
	c, ok := registry[name]
	return c, ok
}

// Names lists registered scenarios in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
