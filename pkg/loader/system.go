package loader

import (
	"sync"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

var (
	systemOnce   sync.Once
	systemLoader *Loader
)

// System returns the process-wide root loader.  It owns the standard library
// modules "math", "time" and "json", which any unit may load.
func System() *Loader {
	systemOnce.Do(func() {
		systemLoader = New(nil, WithName("system"))
		for name, mod := range map[string]starlark.Value{
			"math": math.Module,
			"time": time.Module,
			"json": json.Module,
		} {
			if _, err := systemLoader.Define(name, starlark.StringDict{name: mod}); err != nil {
				panic(err)
			}
		}
	})
	return systemLoader
}
