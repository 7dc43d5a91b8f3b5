package auth

import "strings"

// Permission is a fine-grained capability.
type Permission string

const (
	PermUpload   Permission = "upload"
	PermSearch   Permission = "search"
	PermDownload Permission = "download"
	PermAdmin    Permission = "admin"
)

// Roles understood by the token issuer. The mapping is flat: a role names a
// fixed permission set, there is no inheritance between roles.
const (
	RoleAdmin    = "admin"
	RoleUploader = "uploader"
	RoleReader   = "reader"
)

// PermissionSet is a subject's resolved capabilities.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the required permission.
// Admin grants everything.
func (s PermissionSet) Has(required Permission) bool {
	if _, ok := s[PermAdmin]; ok {
		return true
	}
	_, ok := s[required]
	return ok
}

// IsAdmin reports whether the set carries the admin capability.
func (s PermissionSet) IsAdmin() bool {
	_, ok := s[PermAdmin]
	return ok
}

// List returns the permissions in a stable order.
func (s PermissionSet) List() []Permission {
	ordered := []Permission{PermUpload, PermSearch, PermDownload, PermAdmin}
	out := make([]Permission, 0, len(s))
	for _, p := range ordered {
		if _, ok := s[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// PermissionsForRole resolves a role name to its permission set.
// Unknown roles resolve to an empty set rather than an error: such a token
// authenticates but is denied on every authorization check.
func PermissionsForRole(role string) PermissionSet {
	switch strings.TrimSpace(strings.ToLower(role)) {
	case RoleAdmin:
		return NewPermissionSet(PermAdmin)
	case RoleUploader:
		return NewPermissionSet(PermUpload, PermSearch, PermDownload)
	case RoleReader:
		return NewPermissionSet(PermSearch, PermDownload)
	default:
		return NewPermissionSet()
	}
}
