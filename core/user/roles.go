// Package user describes the authenticated principals of the API: school users and services.
// Accounts themselves live in the managed database; only their roles matter here.
package user

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"
	RoleAdminLibrarian = "admin:librarian"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"

	// Parent
	RoleParent = "parent:"

	// Services
	RoleService          = "service:"
	RoleServiceScheduler = "service:scheduler"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal, RoleAdminLibrarian}
	ServiceRoles = []string{RoleServiceScheduler}
	AllRoles     = getAllRoles()

	// DispatchRoles may trigger a library notifications run. Prefixes match any role in their group.
	DispatchRoles = []string{RoleAdmin, RoleServiceScheduler}

	ErrUnknownRole = errors.New("unknown role")
)

func getAllRoles() []string {
	all := make([]string, 0, 8)
	all = append(all, AdminRoles...)
	all = append(all, RoleTeacher, RoleStudent, RoleParent)
	all = append(all, ServiceRoles...)
	sort.Strings(all)
	return all
}

// ValidateRoles fails on the first role that does not exist.
func ValidateRoles(roles []string) error {
	for _, role := range roles {
		if i := sort.SearchStrings(AllRoles, role); i == len(AllRoles) || AllRoles[i] != role {
			return errors.Wrap(ErrUnknownRole, role)
		}
	}
	return nil
}

// User is the principal behind a request, as carried by its access token.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether u has one of roles. A role ending with ":" is a group: "admin:" matches "admin:owner".
func (u User) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		if strings.HasSuffix(want, ":") {
			if u.RoleStartsWith(want) {
				return true
			}
			continue
		}
		for _, role := range u.Roles {
			if role == want {
				return true
			}
		}
	}
	return false
}
