package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/testutil"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateDefaultsToActiveCustomer(t *testing.T) {
	repo := NewRepository(testutil.OpenDB(t).DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, NewUser{Email: "shopper@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleCustomer, user.Role)
	assert.True(t, user.IsActive)

	found, err := repo.FindByEmail(ctx, "shopper@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindByEmail(ctx, "missing@example.com")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	repo := NewRepository(testutil.OpenDB(t).DB())
	ctx := context.Background()

	_, err := repo.Create(ctx, NewUser{Email: "twice@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, NewUser{Email: "twice@example.com", PasswordHash: "hash"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRecordLoginAndSetRole(t *testing.T) {
	repo := NewRepository(testutil.OpenDB(t).DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, NewUser{Email: "ops@example.com", PasswordHash: "old"})
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.RecordLogin(ctx, user.ID, at, ""))
	require.NoError(t, repo.SetRole(ctx, user.ID, enums.RoleAdmin))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, reloaded.Role)
	assert.Equal(t, "old", reloaded.PasswordHash)
	require.NotNil(t, reloaded.LastLoginAt)
	assert.True(t, reloaded.LastLoginAt.Equal(at))

	require.NoError(t, repo.RecordLogin(ctx, user.ID, at.Add(time.Minute), "new"))
	reloaded, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", reloaded.PasswordHash)

	view := FromModel(reloaded)
	assert.Equal(t, reloaded.Email, view.Email)
	assert.Nil(t, FromModel(nil))
}
