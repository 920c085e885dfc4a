package management

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maskedValue = "******"

var sensitiveKeys = []string{"token", "password", "secret", "credential"}

// FlattenProperties turns a nested map (as decoded from YAML) into dotted
// property names. Slices are indexed as name[i].
func FlattenProperties(prefix string, v any, origin string) map[string]PropertyDetails {
	out := map[string]PropertyDetails{}
	flattenInto(out, prefix, v, origin)
	return out
}

func flattenInto(out map[string]PropertyDetails, name string, v any, origin string) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 && name != "" {
			out[name] = PropertyDetails{Value: t, Origin: origin}
		}
		for k, sub := range t {
			key := k
			if name != "" {
				key = name + "." + k
			}
			flattenInto(out, key, sub, origin)
		}
	case []any:
		if len(t) == 0 && name != "" {
			out[name] = PropertyDetails{Value: t, Origin: origin}
		}
		for i, sub := range t {
			flattenInto(out, fmt.Sprintf("%s[%d]", name, i), sub, origin)
		}
	default:
		if name != "" {
			out[name] = PropertyDetails{Value: v, Origin: origin}
		}
	}
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// maskEnv replaces values of sensitive properties. Empty values stay empty so
// an unset token still reads as unset.
func maskEnv(env Env) Env {
	out := Env{ActiveProfiles: env.ActiveProfiles, PropertySources: make([]PropertySource, 0, len(env.PropertySources))}
	if out.ActiveProfiles == nil {
		out.ActiveProfiles = []string{}
	}
	for _, src := range env.PropertySources {
		props := make(map[string]PropertyDetails, len(src.Properties))
		for name, d := range src.Properties {
			if isSensitive(name) && d.Value != nil && d.Value != "" {
				d.Value = maskedValue
			}
			props[name] = d
		}
		out.PropertySources = append(out.PropertySources, PropertySource{Name: src.Name, Properties: props})
	}
	return out
}

// LookupProperty resolves name across sources in order; the first source that
// defines it wins.
func LookupProperty(env Env, name string) (EnvProperty, bool) {
	out := EnvProperty{
		ActiveProfiles:  env.ActiveProfiles,
		DefaultProfiles: []string{"default"},
		PropertySources: make([]PropertySourceRef, 0, len(env.PropertySources)),
	}
	if out.ActiveProfiles == nil {
		out.ActiveProfiles = []string{}
	}
	found := false
	for _, src := range env.PropertySources {
		ref := PropertySourceRef{Name: src.Name}
		if d, ok := src.Properties[name]; ok {
			ref.Property = &d
			if !found {
				out.Property = PropertyValue{Source: src.Name, Value: d.Value}
				found = true
			}
		}
		out.PropertySources = append(out.PropertySources, ref)
	}
	return out, found
}

func (h *handlers) env(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, maskEnv(h.deps.Env()))
}

func (h *handlers) envProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	out, ok := LookupProperty(maskEnv(h.deps.Env()), name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown property "+strconv.Quote(name))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PropertyNames returns the sorted, de-duplicated names across all sources.
func PropertyNames(env Env) []string {
	seen := map[string]struct{}{}
	for _, src := range env.PropertySources {
		for name := range src.Properties {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
