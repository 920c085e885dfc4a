package app

import (
	"encoding/json"
	"os"
	"runtime"

	"taskbeat/internal/config"
	"taskbeat/internal/management"
)

// env serves the effective config, then the built-in defaults, then process
// facts. The first source defining a property wins.
func (a *App) env() management.Env {
	path := a.cfgm.Path()
	return management.Env{
		ActiveProfiles: []string{},
		PropertySources: []management.PropertySource{
			{Name: "config: " + path, Properties: configProperties(a.cfgm.Get(), path)},
			{Name: "defaults", Properties: configProperties(config.Default(), "")},
			{Name: "runtime", Properties: map[string]management.PropertyDetails{
				"taskbeat.version": {Value: a.version},
				"go.version":       {Value: runtime.Version()},
				"go.os":            {Value: runtime.GOOS},
				"go.arch":          {Value: runtime.GOARCH},
				"process.pid":      {Value: os.Getpid()},
			}},
		},
	}
}

func configProperties(cfg *config.Config, origin string) map[string]management.PropertyDetails {
	if cfg == nil {
		return map[string]management.PropertyDetails{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return map[string]management.PropertyDetails{}
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return map[string]management.PropertyDetails{}
	}
	return management.FlattenProperties("", tree, origin)
}
