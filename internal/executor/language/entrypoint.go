package language

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrNoEntryPoint is returned by a resolver that finds no entry declaration.
var ErrNoEntryPoint = errors.New("no entry point found")

var javaPublicClass = regexp.MustCompile(`public\s+class\s+([A-Za-z_][A-Za-z0-9_]*)`)

// JavaPublicClass returns the name of the first `public class` declared in
// the source. It is a textual heuristic, not a parse: comments, strings,
// nested types and multiple top-level declarations are not understood, and
// the first textual match wins.
func JavaPublicClass(source string) (string, error) {
	m := javaPublicClass.FindStringSubmatch(source)
	if m == nil {
		return "", fmt.Errorf("%w: no public class declaration", ErrNoEntryPoint)
	}
	return m[1], nil
}

// resolvers are the entry-point resolvers that configuration can name.
var resolvers = map[string]EntryPointResolver{
	"java-public-class": JavaPublicClass,
}

// LookupResolver returns the resolver registered under name.
func LookupResolver(name string) (EntryPointResolver, error) {
	r, ok := resolvers[name]
	if !ok {
		names := make([]string, 0, len(resolvers))
		for n := range resolvers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("language: unknown entry-point resolver %q (known: %v)", name, names)
	}
	return r, nil
}
