package main

import (
	"strings"

	"github.com/hyperifyio/optspipe/internal/opts"
)

// parseAssignments turns k=v words into an argument map. A key naming an
// option known to current takes that option's type; other values go through
// the coercion chain: "true" is a bool, "3" an int, "a,b" a list.
func parseAssignments(words []string, current *opts.Node) (map[string]any, error) {
	out := make(map[string]any, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, usagef("argument %q is not key=value", w)
		}
		like, known := current.Get(k)
		if !known {
			out[k] = opts.Coerce(v)
			continue
		}
		val, err := opts.CoerceLike(like, v)
		if err != nil {
			return nil, usagef("argument %q: %v", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// parseAliases reads name=a,b alias flags.
func parseAliases(specs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, s := range specs {
		name, targets, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, usagef("alias %q is not name=tool[,tool...]", s)
		}
		var names []string
		for _, t := range strings.Split(targets, ",") {
			if t = strings.TrimSpace(t); t != "" {
				names = append(names, t)
			}
		}
		if len(names) == 0 {
			return nil, usagef("alias %q has no targets", name)
		}
		out[name] = names
	}
	return out, nil
}
