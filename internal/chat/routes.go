package chat

import "strings"

// Route is a navigable storefront page.
type Route struct {
	Key   string
	Path  string
	Title string
}

// Routes is the routing table supplied by the host application.
type Routes struct {
	byKey  map[string]Route
	routes []Route
}

func NewRoutes(routes []Route) Routes {
	r := Routes{byKey: make(map[string]Route, len(routes))}
	for _, route := range routes {
		r.byKey[route.Key] = route
		r.routes = append(r.routes, route)
	}
	return r
}

// Path resolves a route key.
func (r Routes) Path(key string) (string, bool) {
	route, ok := r.byKey[key]
	if !ok {
		return "", false
	}
	return route.Path, true
}

// Title returns the page title for path using the longest matching prefix.
// "/" only matches the root itself.
func (r Routes) Title(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	best := Route{}
	for _, route := range r.routes {
		if route.Path == "/" {
			if path == "/" || path == "" {
				if best.Path == "" {
					best = route
				}
			}
			continue
		}
		if path == route.Path || strings.HasPrefix(path, route.Path+"/") {
			if len(route.Path) > len(best.Path) {
				best = route
			}
		}
	}
	if best.Title != "" {
		return best.Title
	}
	return defaultPageTitle
}

const defaultPageTitle = "Nam Long Center"
