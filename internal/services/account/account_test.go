package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error) {
	args := m.Called(ctx, clerkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}
func (m *RepoMock) GetAdmin(ctx context.Context, clerkID string) (*models.Admin, error) {
	args := m.Called(ctx, clerkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Admin), args.Error(1)
}
func (m *RepoMock) UpdateProfile(ctx context.Context, clerkID string, update models.ProfileUpdate) error {
	return m.Called(ctx, clerkID, update).Error(0)
}
func (m *RepoMock) DeleteAccount(ctx context.Context, clerkID string) error {
	return m.Called(ctx, clerkID).Error(0)
}

type BillingMock struct{ mock.Mock }

func (m *BillingMock) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

type MediaMock struct{ mock.Mock }

func (m *MediaMock) Destroy(ctx context.Context, publicID string) error {
	return m.Called(ctx, publicID).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestDelete(t *testing.T) {
	subID := "sub_1"

	t.Run("успешное удаление с отменой подписки и чисткой файлов", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccountByClerkID", mock.Anything, "user_1").
			Return(&models.Account{ClerkID: "user_1", StripeSubscriptionID: &subID}, nil).Once()
		repo.On("GetAdmin", mock.Anything, "user_1").
			Return(nil, repository.ErrAdminNotFound).Once()
		repo.On("DeleteAccount", mock.Anything, "user_1").Return(nil).Once()

		billing := new(BillingMock)
		billing.On("CancelSubscription", mock.Anything, "sub_1").Return(nil).Once()

		media := new(MediaMock)
		media.On("Destroy", mock.Anything, "avatars/user_1").Return(nil).Once()

		svc := New(repo, billing, media, newNoopLogger())
		err := svc.Delete(context.Background(), "user_1", []string{"avatars/user_1"})
		require.NoError(t, err)
		repo.AssertExpectations(t)
		billing.AssertExpectations(t)
		media.AssertExpectations(t)
	})

	t.Run("аккаунт администратора не удаляется, мутации не выполняются", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccountByClerkID", mock.Anything, "admin_1").
			Return(&models.Account{ClerkID: "admin_1", StripeSubscriptionID: &subID}, nil).Once()
		repo.On("GetAdmin", mock.Anything, "admin_1").
			Return(&models.Admin{ClerkID: "admin_1", AccessLevel: models.AccessFull, BecameAdminAt: time.Now()}, nil).Once()

		billing := new(BillingMock)
		media := new(MediaMock)

		svc := New(repo, billing, media, newNoopLogger())
		err := svc.Delete(context.Background(), "admin_1", []string{"avatars/admin_1"})
		assert.ErrorIs(t, err, ErrAdminAccount)

		repo.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
		billing.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything)
		media.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
	})

	t.Run("ошибка отмены подписки не прерывает удаление", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccountByClerkID", mock.Anything, "user_1").
			Return(&models.Account{ClerkID: "user_1", StripeSubscriptionID: &subID}, nil).Once()
		repo.On("GetAdmin", mock.Anything, "user_1").
			Return(nil, repository.ErrAdminNotFound).Once()
		repo.On("DeleteAccount", mock.Anything, "user_1").Return(nil).Once()

		billing := new(BillingMock)
		billing.On("CancelSubscription", mock.Anything, "sub_1").
			Return(errors.New("provider unavailable")).Once()

		svc := New(repo, billing, new(MediaMock), newNoopLogger())
		err := svc.Delete(context.Background(), "user_1", nil)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("ошибка удаления строки прерывает операцию", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccountByClerkID", mock.Anything, "user_1").
			Return(&models.Account{ClerkID: "user_1"}, nil).Once()
		repo.On("GetAdmin", mock.Anything, "user_1").
			Return(nil, repository.ErrAdminNotFound).Once()
		repo.On("DeleteAccount", mock.Anything, "user_1").
			Return(errors.New("db error")).Once()

		svc := New(repo, new(BillingMock), new(MediaMock), newNoopLogger())
		err := svc.Delete(context.Background(), "user_1", nil)
		assert.Error(t, err)
	})

	t.Run("ошибка проверки админ-записи прерывает операцию", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccountByClerkID", mock.Anything, "user_1").
			Return(&models.Account{ClerkID: "user_1"}, nil).Once()
		repo.On("GetAdmin", mock.Anything, "user_1").
			Return(nil, errors.New("db error")).Once()

		svc := New(repo, new(BillingMock), new(MediaMock), newNoopLogger())
		err := svc.Delete(context.Background(), "user_1", nil)
		assert.Error(t, err)
		repo.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
	})
}

func TestUpdateProfile(t *testing.T) {
	name := "New Name"
	repo := new(RepoMock)
	repo.On("UpdateProfile", mock.Anything, "user_1",
		models.ProfileUpdate{Name: &name}).Return(nil).Once()

	svc := New(repo, new(BillingMock), new(MediaMock), newNoopLogger())
	err := svc.UpdateProfile(context.Background(), "user_1", models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
