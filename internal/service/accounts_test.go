package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.RegisterAccount(ctx, " Player@Example.com ", "secret")
	require.NoError(t, err)

	acc := f.store.snapshot().accounts[id]
	assert.Equal(t, "player@example.com", acc.Email)
	assert.Equal(t, model.RoleCustomer, acc.Role)
	assert.True(t, acc.Balance.IsZero())
	assert.NotContains(t, string(acc.PasswordHash), "secret")

	got, err := f.svc.Authenticate(ctx, "PLAYER@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.svc.Authenticate(ctx, "player@example.com", "wrong")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = f.svc.Authenticate(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = f.svc.RegisterAccount(ctx, "player@example.com", "other")
	assert.ErrorIs(t, err, model.ErrAccountExists)
}

func TestRegisterAccount_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"bad email", "not-an-email", "secret", "email"},
		{"empty email", "", "secret", "email"},
		{"empty password", "a@example.com", "", "password"},
		{"password too long", "a@example.com", strings.Repeat("p", 73), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterAccount(context.Background(), tt.email, tt.password)
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestPasswordHashIsSalted(t *testing.T) {
	a, err := hashPassword("same")
	require.NoError(t, err)
	b, err := hashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, checkPassword(a, "same"))
	assert.True(t, checkPassword(b, "same"))
	assert.False(t, checkPassword(a, "other"))
	assert.False(t, checkPassword([]byte("short"), "same"))

	cost, err := bcrypt.Cost(a)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestResolvePrincipal(t *testing.T) {
	f := newFixture(t)
	admin := f.account(model.RoleAdmin, "0")

	p, err := f.svc.ResolvePrincipal(context.Background(), admin.AccountID)
	require.NoError(t, err)
	assert.Equal(t, admin, p)

	_, err = f.svc.ResolvePrincipal(context.Background(), newTestID())
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestBanAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.account(model.RoleCustomer, "0")
	admin := f.account(model.RoleAdmin, "0")
	otherAdmin := f.account(model.RoleAdmin, "0")
	super := f.account(model.RoleSuperAdmin, "0")

	t.Run("customer cannot ban", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.BanAccount(ctx, customer, admin.AccountID), model.ErrForbidden)
	})

	t.Run("admin cannot ban peer", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.BanAccount(ctx, admin, otherAdmin.AccountID), model.ErrForbidden)
	})

	t.Run("admin cannot ban self", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.BanAccount(ctx, super, super.AccountID), model.ErrForbidden)
	})

	t.Run("unknown target", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.BanAccount(ctx, admin, newTestID()), model.ErrAccountNotFound)
	})

	t.Run("super admin bans admin", func(t *testing.T) {
		require.NoError(t, f.svc.BanAccount(ctx, super, otherAdmin.AccountID))
		assert.True(t, f.store.snapshot().accounts[otherAdmin.AccountID].Banned)

		_, err := f.svc.ResolvePrincipal(ctx, otherAdmin.AccountID)
		assert.ErrorIs(t, err, model.ErrAccountBanned)
	})

	t.Run("admin bans customer who can no longer log in", func(t *testing.T) {
		id, err := f.svc.RegisterAccount(ctx, "banned@example.com", "pw")
		require.NoError(t, err)
		require.NoError(t, f.svc.BanAccount(ctx, admin, id))

		_, err = f.svc.Authenticate(ctx, "banned@example.com", "pw")
		assert.ErrorIs(t, err, model.ErrAccountBanned)
	})
}
