package sensor

import (
	"sync"

	"scd30node-go/errcode"
)

// Builder constructs a driver from settings. Builders register themselves in
// init() under their config type name.
type Builder func(id string, s Settings) (Driver, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// Register installs a builder for a config type. Registering the same type
// twice is a programming error.
func Register(typ string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := builders[typ]; exists {
		panic("sensor: builder already registered for type " + typ)
	}
	builders[typ] = b
}

// Build constructs a driver of the named type.
func Build(typ, id string, s Settings) (Driver, error) {
	mu.RLock()
	b, ok := builders[typ]
	mu.RUnlock()
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "sensor.build", Msg: "unknown driver type " + typ}
	}
	return b(id, s)
}

// Types lists the registered driver types (for CLI help and config errors).
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for t := range builders {
		out = append(out, t)
	}
	return out
}
