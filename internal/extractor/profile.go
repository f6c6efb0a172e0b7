package extractor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedLibrary is returned when no profile exists for a library.
var ErrUnsupportedLibrary = errors.New("unsupported library")

// Profile describes how a library's API surface shows up in source code.
type Profile struct {
	Library string

	// Modules maps an import source to the canonical namespace that its
	// default or namespace binding stands for.
	Modules map[string]string

	// Unqualified names are reported bare, even when reached through a
	// namespace, and are recognized regardless of where they were imported.
	Unqualified map[string]bool
}

// Namespace returns the canonical namespace for an import source.
func (p *Profile) Namespace(module string) (string, bool) {
	ns, ok := p.Modules[module]
	return ns, ok
}

// IsNamespace reports whether name is one of the canonical namespaces.
func (p *Profile) IsNamespace(name string) bool {
	for _, ns := range p.Modules {
		if ns == name {
			return true
		}
	}
	return false
}

// Qualify builds the canonical name for a member reached through ns.
func (p *Profile) Qualify(ns string, chain ...string) string {
	if len(chain) == 1 && p.Unqualified[chain[0]] {
		return chain[0]
	}
	if ns == "" {
		return strings.Join(chain, ".")
	}
	return ns + "." + strings.Join(chain, ".")
}

var reactHooks = []string{
	"useState", "useEffect", "useContext", "useReducer", "useCallback",
	"useMemo", "useRef", "useImperativeHandle", "useLayoutEffect",
	"useDebugValue", "useId", "useTransition", "useDeferredValue",
	"useInsertionEffect", "useSyncExternalStore",
}

var profiles = map[string]*Profile{
	"react": newReactProfile(),
}

func newReactProfile() *Profile {
	p := &Profile{
		Library: "react",
		Modules: map[string]string{
			"react":            "React",
			"react-dom":        "ReactDOM",
			"react-dom/client": "ReactDOM",
			"react-dom/server": "ReactDOMServer",
		},
		Unqualified: map[string]bool{
			"createRoot":  true,
			"hydrateRoot": true,
		},
	}
	for _, h := range reactHooks {
		p.Unqualified[h] = true
	}
	return p
}

// LookupProfile returns the profile registered for library.
func LookupProfile(library string) (*Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(library))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLibrary, library, strings.Join(SupportedLibraries(), ", "))
	}
	return p, nil
}

// SupportedLibraries lists registered library identifiers in sorted order.
func SupportedLibraries() []string {
	out := make([]string, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
