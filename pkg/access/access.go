// Package access is the single table mapping roles to the routes and menu
// entries they may see. Route guards take their allow-lists from here.
package access

import (
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// Route identifies a navigable page.
type Route string

const (
	RouteHome           Route = "home"
	RouteProfile        Route = "profile"
	RouteFindAlerts     Route = "find-alerts"
	RouteAddAlert       Route = "add-alert"
	RouteAdminDashboard Route = "admin-dashboard"
)

// entry describes one route. A nil roles slice means the route is public.
type entry struct {
	route Route
	path  string
	label string
	roles []enums.Role
}

var table = []entry{
	{route: RouteHome, path: "/", label: "Home"},
	{route: RouteProfile, path: "/profile", label: "Profile", roles: []enums.Role{enums.RoleFarmer, enums.RoleAgronomist, enums.RoleAdmin}},
	{route: RouteFindAlerts, path: "/alerts", label: "Find Alerts", roles: []enums.Role{enums.RoleFarmer, enums.RoleAgronomist}},
	{route: RouteAddAlert, path: "/alerts/new", label: "Add Alert", roles: []enums.Role{enums.RoleAgronomist}},
	{route: RouteAdminDashboard, path: "/admin", label: "Admin Dashboard", roles: []enums.Role{enums.RoleAdmin}},
}

// MenuItem is a visible navigation entry.
type MenuItem struct {
	Route Route  `json:"route"`
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Routes returns the routes visible to role, in menu order. Public routes are
// always included.
func Routes(role enums.Role) []Route {
	out := []Route{}
	for _, e := range table {
		if allows(e.roles, role) {
			out = append(out, e.route)
		}
	}
	return out
}

// Menu returns the navigation entries for a profile; nil means signed out.
func Menu(profile *types.UserProfile) []MenuItem {
	out := []MenuItem{}
	for _, e := range table {
		if e.roles == nil || (profile != nil && allows(e.roles, profile.Role)) {
			out = append(out, MenuItem{Route: e.route, Path: e.path, Label: e.label})
		}
	}
	return out
}

// RolesFor returns the guard allow-list for route. Public and unknown routes
// return nil, which guards treat as no role restriction.
func RolesFor(route Route) []enums.Role {
	for _, e := range table {
		if e.route == route {
			if e.roles == nil {
				return nil
			}
			return append([]enums.Role(nil), e.roles...)
		}
	}
	return nil
}

// Path returns the URL path of route.
func Path(route Route) string {
	for _, e := range table {
		if e.route == route {
			return e.path
		}
	}
	return ""
}

// CanView reports whether role may open route.
func CanView(role enums.Role, route Route) bool {
	for _, e := range table {
		if e.route == route {
			return allows(e.roles, role)
		}
	}
	return false
}

// CanCreateAlert gates alert publishing. It is a UI concern, not a guard one:
// unapproved agronomists still reach the add-alert page.
func CanCreateAlert(profile *types.UserProfile) bool {
	return profile.CanCreateAlert()
}

func allows(roles []enums.Role, role enums.Role) bool {
	if roles == nil {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
