// Package permissions maps roles to permission strings and checks them with
// wildcard support.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "reports.*")
//   - "resource.action" - Specific action (e.g., "reports.manage")
package permissions

import (
	"strings"
)

// Permissions used by the report routes.
const (
	ReportsCreate = "reports.create"
	ReportsTrack  = "reports.track"
	ReportsRead   = "reports.read"
	ReportsManage = "reports.manage"
	ProfileUpdate = "profile.update"
)

var rolePermissions = map[string][]string{
	"citizen":   {ReportsCreate, ReportsTrack, ProfileUpdate},
	"authority": {ReportsCreate, ReportsTrack, ReportsRead, ReportsManage, ProfileUpdate},
	"admin":     {"*"},
}

// ForRole returns the permission set granted to a role. Unknown roles get none.
func ForRole(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "reports.*" matches "reports.read", "reports.manage", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the user has all of the required permissions.
func HasAllPermissions(userPerms []string, required []string) bool {
	for _, req := range required {
		if !HasPermission(userPerms, req) {
			return false
		}
	}
	return true
}
