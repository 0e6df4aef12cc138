package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

func TestStorage_UpsertAccount(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	verify := NewTestVerification(storage)

	account := models.Account{
		ClerkID:            "user_1",
		Email:              "user@example.com",
		Name:               "Test User",
		SubscriptionPlanID: models.FreePlanID,
		SubscriptionStatus: "free",
	}
	require.NoError(t, storage.UpsertAccount(ctx, account))
	verify.VerifyAccountExists(t, "user_1")

	// Повторный upsert обновляет только почту и имя.
	_, err := storage.DB.Exec(`UPDATE accounts
		SET subscription_plan_id = 'pro', subscription_status = 'active'
		WHERE clerk_id = 'user_1'`)
	require.NoError(t, err)

	account.Email = "renamed@example.com"
	account.Name = "Renamed User"
	require.NoError(t, storage.UpsertAccount(ctx, account))

	got, err := storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "renamed@example.com", got.Email)
	assert.Equal(t, "Renamed User", got.Name)
	assert.Equal(t, "pro", got.SubscriptionPlanID, "re-upsert must not touch subscription fields")
	assert.Equal(t, "active", got.SubscriptionStatus)
}

func TestStorage_GetAccount(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	factory.CreateAccountWithSubscription(t, "user_1", "user@example.com",
		"pro", "active", "cus_1", "sub_1", periodEnd, true)

	t.Run("поиск по clerk_id", func(t *testing.T) {
		got, err := storage.GetAccountByClerkID(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", got.Email)
		require.NotNil(t, got.StripeCustomerID)
		assert.Equal(t, "cus_1", *got.StripeCustomerID)
		require.NotNil(t, got.CurrentPeriodEnd)
		assert.WithinDuration(t, periodEnd, *got.CurrentPeriodEnd, time.Second)
		require.NotNil(t, got.AutoRenew)
		assert.True(t, *got.AutoRenew)
	})

	t.Run("поиск по идентификатору клиента биллинга", func(t *testing.T) {
		got, err := storage.GetAccountByStripeCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "user_1", got.ClerkID)
	})

	t.Run("поиск по почте", func(t *testing.T) {
		got, err := storage.GetAccountByEmail(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, "user_1", got.ClerkID)
	})

	t.Run("несуществующий аккаунт", func(t *testing.T) {
		_, err := storage.GetAccountByClerkID(ctx, "ghost")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = storage.GetAccountByStripeCustomerID(ctx, "cus_ghost")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = storage.GetAccountByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestStorage_UpdateProfile(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateAccount(t, "user_1", "user@example.com", "Test User")

	name := "New Name"
	require.NoError(t, storage.UpdateProfile(ctx, "user_1", models.ProfileUpdate{Name: &name}))

	got, err := storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, "user@example.com", got.Email, "nil email leaves the old value")

	email := "new@example.com"
	require.NoError(t, storage.UpdateProfile(ctx, "user_1", models.ProfileUpdate{Email: &email}))
	got, err = storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "New Name", got.Name)

	err = storage.UpdateProfile(ctx, "ghost", models.ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStorage_SetStripeCustomerID(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateAccount(t, "user_1", "user@example.com", "Test User")

	require.NoError(t, storage.SetStripeCustomerID(ctx, "user_1", "cus_1"))

	// Поле пишется один раз, повторная привязка невозможна.
	err := storage.SetStripeCustomerID(ctx, "user_1", "cus_2")
	assert.Error(t, err)

	got, err := storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_1", *got.StripeCustomerID)
}

func TestStorage_UpdateSubscriptionFields(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	factory.CreateAccountWithSubscription(t, "user_1", "user@example.com",
		"pro", "active", "cus_1", "sub_1", periodEnd, true)

	// Удаление подписки возвращает аккаунт к бесплатному базовому состоянию,
	// nil-поля очищают колонки.
	fields := models.SubscriptionFields{
		PlanID: models.FreePlanID,
		Status: "free",
	}
	require.NoError(t, storage.UpdateSubscriptionFields(ctx, "user_1", fields))
	verify.VerifySubscriptionStatus(t, "user_1", "free")

	got, err := storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.FreePlanID, got.SubscriptionPlanID)
	assert.Nil(t, got.StripeSubscriptionID)
	assert.Nil(t, got.CurrentPeriodEnd)
	assert.Nil(t, got.AutoRenew)
	require.NotNil(t, got.StripeCustomerID, "customer link survives subscription removal")

	err = storage.UpdateSubscriptionFields(ctx, "ghost", fields)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStorage_DeleteAccountCascadesAdmin(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	factory.CreateAccount(t, "admin_1", "admin@example.com", "Admin")
	factory.CreateAdmin(t, "admin_1", models.AccessFull)

	require.NoError(t, storage.DeleteAccount(ctx, "admin_1"))
	verify.VerifyAccountDeleted(t, "admin_1")

	_, err := storage.GetAdmin(ctx, "admin_1")
	assert.ErrorIs(t, err, ErrAdminNotFound)

	err = storage.DeleteAccount(ctx, "admin_1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStorage_Admins(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateAccount(t, "admin_1", "admin@example.com", "Admin")

	admin := models.Admin{
		ClerkID:       "admin_1",
		AccessLevel:   models.AccessLimited,
		BecameAdminAt: time.Now().UTC(),
	}
	require.NoError(t, storage.UpsertAdmin(ctx, admin))

	got, err := storage.GetAdmin(ctx, "admin_1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessLimited, got.AccessLevel)

	// Повторный upsert повышает уровень.
	admin.AccessLevel = models.AccessFull
	require.NoError(t, storage.UpsertAdmin(ctx, admin))
	got, err = storage.GetAdmin(ctx, "admin_1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessFull, got.AccessLevel)

	require.NoError(t, storage.RemoveAdmin(ctx, "admin_1"))
	_, err = storage.GetAdmin(ctx, "admin_1")
	assert.ErrorIs(t, err, ErrAdminNotFound)
}

func TestStorage_UpdatePasswordHash(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateAccount(t, "user_1", "user@example.com", "Test User")

	require.NoError(t, storage.UpdatePasswordHash(ctx, "user_1", "new-hash"))

	got, err := storage.GetAccountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	err = storage.UpdatePasswordHash(ctx, "ghost", "new-hash")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
