package user

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolerp/core"
)

func TestGenerateToken(t *testing.T) {
	conf := &core.Config{AppName: "School ERP", SecretKey: "secret"}
	conf.Server.JWTExpirationDelta = time.Hour

	tests := []struct {
		name    string
		usr     User
		wantErr bool
	}{
		{name: "scheduler", usr: User{ID: "cron", Roles: []string{RoleServiceScheduler}}},
		{name: "admin", usr: User{ID: "u1", Email: "head@school.test", Roles: []string{RoleAdminPrincipal}}},
		{name: "no subject", usr: User{Roles: []string{RoleServiceScheduler}}, wantErr: true},
		{name: "unknown role", usr: User{ID: "u1", Roles: []string{"root"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(conf, tt.usr, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			claims, err := ParseToken(conf, token)
			require.NoError(t, err)
			assert.Equal(t, tt.usr, claims.User())
			assert.Equal(t, "School ERP", claims.Issuer)
			assert.Equal(t, claims.IssuedAt+3600, claims.ExpiresAt)
		})
	}
}

func TestParseToken_invalid(t *testing.T) {
	conf := &core.Config{SecretKey: "secret"}
	other := &core.Config{SecretKey: "other"}

	token, err := GenerateToken(other, User{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(conf, token)
	assert.Error(t, err, "wrong key")

	NowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	defer func() { NowFunc = time.Now }()
	token, err = GenerateToken(conf, User{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(conf, token)
	vErr, ok := errors.Cause(err).(*jwt.ValidationError)
	require.True(t, ok, "%v", err)
	assert.NotZero(t, vErr.Errors&jwt.ValidationErrorExpired, "expired")
}
