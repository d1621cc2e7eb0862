// Package console decides which screen a request lands on.
package console

import "lablog-console/internal/model"

// View is one screen of the console.
type View string

const (
	ViewAuth      View = "auth"
	ViewDashboard View = "dashboard"
	ViewLabs      View = "labs"
	ViewSet       View = "set"
	ViewAdmin     View = "admin"
)

var paths = map[View]string{
	ViewAuth:      "/login",
	ViewDashboard: "/dashboard",
	ViewLabs:      "/labs",
	ViewSet:       "/set",
	ViewAdmin:     "/admin",
}

// ParseView maps a stored page name to a view. Unknown names are the dashboard.
func ParseView(s string) View {
	v := View(s)
	if _, ok := paths[v]; ok {
		return v
	}
	return ViewDashboard
}

// Path is the URL of the view.
func (v View) Path() string {
	if p, ok := paths[v]; ok {
		return p
	}
	return paths[ViewDashboard]
}

// Resolve returns the view to show for a requested one. sess is nil when
// nobody is signed in.
func Resolve(sess *model.Session, requested View, hasSelection bool) View {
	if sess == nil {
		return ViewAuth
	}
	switch requested {
	case ViewAuth:
		return ViewDashboard
	case ViewSet:
		if !hasSelection {
			return ViewLabs
		}
	}
	return requested
}

// Landing is where "/" goes: the last visited screen of the session.
func Landing(sess *model.Session, hasSelection bool) View {
	if sess == nil {
		return ViewAuth
	}
	return Resolve(sess, ParseView(sess.LastPage), hasSelection)
}
