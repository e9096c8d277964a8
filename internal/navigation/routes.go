// Package navigation decides which views are reachable for the current
// identity state.
package navigation

import "strings"

// Access is the identity requirement of a route.
type Access int

const (
	// GuardNone lets everyone through.
	GuardNone Access = iota
	// RequiresSession sends signed-out users to LoginPath.
	RequiresSession
	// RequiresAnonymity sends signed-in users to HomePath.
	RequiresAnonymity
)

func (g Access) String() string {
	switch g {
	case RequiresSession:
		return "requires-session"
	case RequiresAnonymity:
		return "requires-anonymity"
	default:
		return "none"
	}
}

const (
	LoginPath = "/login"
	HomePath  = "/projects"
)

// Route is one entry of the route table. Path segments starting with ':'
// capture a parameter; "**" matches anything. A route with RedirectTo
// matches only its exact path and sends the user to RedirectTo, resolved
// relative to the parent route.
type Route struct {
	Path       string
	Name       string
	Guard      Access
	RedirectTo string
	Children   []Route
}

// Routes is the application route table.
var Routes = []Route{
	{Path: "login", Name: "login", Guard: RequiresAnonymity},
	{
		Path:  "",
		Name:  "home",
		Guard: RequiresSession,
		Children: []Route{
			{Path: "projects", Name: "projects"},
			{
				Path: "contributors",
				Name: "contributors",
				Children: []Route{
					{Path: "active", Name: "contributors-active"},
					{Path: "archived", Name: "contributors-archived"},
					{Path: "", RedirectTo: "active"},
				},
			},
			{Path: "", RedirectTo: "projects"},
		},
	},
	{Path: "project/:id", Name: "project", Guard: RequiresSession},
	{Path: "**", RedirectTo: "/projects"},
}

// match is a resolved route: the leaf, the effective guard and the params.
type match struct {
	route    Route
	guard    Access
	params   map[string]string
	redirect string
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Canonical returns path with a leading slash and no trailing slash.
func Canonical(path string) string {
	return "/" + strings.Join(splitPath(path), "/")
}

func matchRoutes(routes []Route, segments, parent []string, guard Access) (match, bool) {
	for _, r := range routes {
		if r.Path == "**" {
			return match{route: r, guard: guard, redirect: resolveRedirect(parent, r.RedirectTo)}, true
		}

		pattern := splitPath(r.Path)
		if len(pattern) > len(segments) {
			continue
		}
		params, ok := matchSegments(pattern, segments[:len(pattern)])
		if !ok {
			continue
		}
		rest := segments[len(pattern):]
		effective := guard
		if r.Guard != GuardNone {
			effective = r.Guard
		}

		if r.RedirectTo != "" {
			if len(rest) != 0 {
				continue
			}
			return match{route: r, guard: effective, redirect: resolveRedirect(parent, r.RedirectTo)}, true
		}

		consumed := append(append([]string(nil), parent...), segments[:len(pattern)]...)
		if len(r.Children) > 0 {
			m, ok := matchRoutes(r.Children, rest, consumed, effective)
			if ok {
				for k, v := range params {
					if _, exists := m.params[k]; !exists {
						m.params[k] = v
					}
				}
				return m, true
			}
			continue
		}
		if len(rest) != 0 {
			continue
		}
		return match{route: r, guard: effective, params: params}, true
	}
	return match{}, false
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	params := map[string]string{}
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			params[p[1:]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func resolveRedirect(parent []string, to string) string {
	if strings.HasPrefix(to, "/") {
		return Canonical(to)
	}
	return Canonical(strings.Join(append(append([]string(nil), parent...), to), "/"))
}
