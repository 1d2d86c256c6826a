package user

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestUser_HasAnyRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{name: "no roles", want: false},
		{name: "student", roles: []string{RoleStudent}, want: false},
		{name: "admin group", roles: []string{RoleAdmin}, want: true},
		{name: "admin owner", roles: []string{RoleAdminOwner}, want: true},
		{name: "librarian", roles: []string{RoleTeacher, RoleAdminLibrarian}, want: true},
		{name: "scheduler", roles: []string{RoleServiceScheduler}, want: true},
		{name: "other service", roles: []string{"service:backup"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr := User{ID: "u1", Roles: tt.roles}
			assert.Equal(t, tt.want, usr.HasAnyRole(DispatchRoles...))
		})
	}
}

func TestUser_RoleStartsWith(t *testing.T) {
	assert.True(t, User{Roles: []string{RoleAdminPrincipal}}.RoleStartsWith(RoleAdmin))
	assert.False(t, User{Roles: []string{RoleTeacher}}.RoleStartsWith(RoleAdmin))
	assert.True(t, User{Roles: []string{RoleServiceScheduler}}.RoleStartsWith(RoleService))
}

func TestValidateRoles(t *testing.T) {
	assert.NoError(t, ValidateRoles(nil))
	assert.NoError(t, ValidateRoles([]string{RoleServiceScheduler, RoleAdminOwner, RoleParent}))

	err := ValidateRoles([]string{RoleStudent, "janitor:"})
	assert.Equal(t, ErrUnknownRole, errors.Cause(err))
	assert.EqualError(t, err, "janitor:: unknown role")
}
