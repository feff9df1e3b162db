// Package guard decides whether a view may render for the current session.
package guard

import (
	"expensio/internal/core"
	"expensio/internal/session"
)

const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Route is a static view declaration.
type Route struct {
	Path         string
	Title        string
	RequiredAuth bool
	RequiredRole core.Role // empty means any authenticated role
	InMenu       bool
}

// Decision is either Render or a redirect to RedirectTo.
type Decision struct {
	RedirectTo string
}

var Render = Decision{}

func RedirectTo(path string) Decision { return Decision{RedirectTo: path} }

func (d Decision) Allowed() bool { return d.RedirectTo == "" }

// State is the guard's view of a session.
type State int

const (
	Unauthenticated State = iota
	AuthenticatedUser
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case AuthenticatedUser:
		return "user"
	case AuthenticatedAdmin:
		return "admin"
	}
	return "anonymous"
}

func StateOf(s session.Session) State {
	switch {
	case !s.Authenticated():
		return Unauthenticated
	case s.Role == core.RoleAdmin:
		return AuthenticatedAdmin
	default:
		return AuthenticatedUser
	}
}

// Decide is pure: the same route and session always give the same decision.
func Decide(r Route, s session.Session) Decision {
	if r.RequiredAuth && !s.Authenticated() {
		return RedirectTo(LoginPath)
	}
	if r.RequiredRole != "" && s.Role != r.RequiredRole {
		return RedirectTo(HomePath)
	}
	return Render
}

var routes = []Route{
	{Path: LoginPath, Title: "Login"},
	{Path: "/register", Title: "Register"},
	{Path: HomePath, Title: "Dashboard", RequiredAuth: true, InMenu: true},
	{Path: "/expenses", Title: "Expenses", RequiredAuth: true, InMenu: true},
	{Path: "/categories", Title: "Categories", RequiredAuth: true, InMenu: true},
	{Path: "/users", Title: "Users", RequiredAuth: true, RequiredRole: core.RoleAdmin, InMenu: true},
	{Path: "/reports", Title: "Reports", RequiredAuth: true, InMenu: true},
	{Path: "/settings", Title: "Settings", RequiredAuth: true, InMenu: true},
}

// Routes returns a copy of the declared views.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Lookup finds the declaration of path.
func Lookup(path string) (Route, bool) {
	for _, r := range routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// MustLookup is Lookup for paths declared above.
func MustLookup(path string) Route {
	r, ok := Lookup(path)
	if !ok {
		panic("guard: undeclared route " + path)
	}
	return r
}

// Navigation returns the menu entries the session may open.
func Navigation(s session.Session) []Route {
	var out []Route
	for _, r := range routes {
		if r.InMenu && Decide(r, s).Allowed() {
			out = append(out, r)
		}
	}
	return out
}
