// Package auth models the acting user and the privilege check consumed by
// the amendment workflow. The identity itself is established upstream (the
// fronting auth proxy); this service only threads the actor through every
// call - there is no ambient current-user state.
package auth

import "strings"

// RoleAdmin is the privileged role allowed to resolve change requests.
const RoleAdmin = "admin"

// Actor is the authenticated user performing a submit, approve or reject.
type Actor struct {
	Email string
	Name  string
	Role  string
}

// AuthorizationGate answers whether an actor holds the privileged role.
type AuthorizationGate interface {
	IsAdmin(actor Actor) bool
}

// StaticGate grants admin either by role claim or by a configured email
// allowlist. Emails are compared case-insensitively.
type StaticGate struct {
	admins map[string]struct{}
}

// NewStaticGate builds a gate from the configured admin emails.
func NewStaticGate(adminEmails []string) *StaticGate {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			admins[e] = struct{}{}
		}
	}
	return &StaticGate{admins: admins}
}

// IsAdmin implements AuthorizationGate.
func (g *StaticGate) IsAdmin(actor Actor) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	_, ok := g.admins[strings.ToLower(actor.Email)]
	return ok
}

var _ AuthorizationGate = (*StaticGate)(nil)
