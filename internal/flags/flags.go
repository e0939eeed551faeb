// Package flags holds boolean feature switches read from the flags
// section of the configuration.
package flags

import (
	"maps"
	"strings"

	"github.com/zjrosen/turbo/internal/log"
)

const (
	// FlagEventStream controls whether the API server streams processed
	// commands on GET /events.
	FlagEventStream = "event-stream"
)

var known = map[string]bool{
	FlagEventStream: true,
}

// Defaults returns the default value of every known flag.
func Defaults() map[string]bool {
	return maps.Clone(known)
}

// Registry is a read-only set of flag values.
type Registry struct {
	flags map[string]bool
}

// New returns a registry holding the known defaults overridden by values.
// Keys are matched case-insensitively. Unknown keys are kept but logged.
func New(values map[string]bool) *Registry {
	r := &Registry{flags: Defaults()}
	for name, on := range values {
		name = strings.ToLower(name)
		if _, ok := known[name]; !ok {
			log.Warn(log.CatConfig, "Unknown feature flag", "flag", name)
		}
		r.flags[name] = on
	}
	log.Debug(log.CatConfig, "Feature flags", "flags", r.flags)
	return r
}

// Enabled reports whether name is on. Unset flags and a nil registry
// report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[strings.ToLower(name)]
}

// All returns a copy of the flag values.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
