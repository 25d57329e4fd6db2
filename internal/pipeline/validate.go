package pipeline

import (
	"errors"
	"sort"

	"github.com/hyperifyio/optspipe/internal/optstree"
)

// ValidateAliasTable checks an alias table against the known tool names.
// Each target must be a known name or another alias. Alias cycles are not
// detected here; Resolve reports them when they are reached.
func ValidateAliasTable(aliases map[string][]string, known []string) error {
	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}

	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if optstree.IsReservedName(name) {
			errs = append(errs, &AliasError{Alias: name, Reason: "reserved name"})
			continue
		}
		if isKnown[name] {
			errs = append(errs, &AliasError{Alias: name, Reason: "clashes with a tool of the same name"})
			continue
		}
		if len(aliases[name]) == 0 {
			errs = append(errs, &AliasError{Alias: name, Reason: "no targets"})
			continue
		}
		for _, target := range aliases[name] {
			if isKnown[target] {
				continue
			}
			if _, ok := aliases[target]; ok && !optstree.IsReservedName(target) {
				continue
			}
			errs = append(errs, &AliasError{Alias: name, Reason: "unknown target " + target})
		}
	}
	return errors.Join(errs...)
}
