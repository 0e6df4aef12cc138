package reconciler

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

	"github.com/magabrotheeeer/subscription-reconciler/internal/billing"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
	"github.com/magabrotheeeer/subscription-reconciler/internal/subscription"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UpsertAccount(ctx context.Context, account models.Account) error {
	return m.Called(ctx, account).Error(0)
}
func (m *RepoMock) GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error) {
	args := m.Called(ctx, clerkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}
func (m *RepoMock) GetAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}
func (m *RepoMock) UpdateEmail(ctx context.Context, clerkID, email string) error {
	return m.Called(ctx, clerkID, email).Error(0)
}
func (m *RepoMock) SetStripeCustomerID(ctx context.Context, clerkID, customerID string) error {
	return m.Called(ctx, clerkID, customerID).Error(0)
}
func (m *RepoMock) UpdateSubscriptionFields(ctx context.Context, clerkID string, fields models.SubscriptionFields) error {
	return m.Called(ctx, clerkID, fields).Error(0)
}
func (m *RepoMock) DeleteAccount(ctx context.Context, clerkID string) error {
	return m.Called(ctx, clerkID).Error(0)
}

type BillingMock struct{ mock.Mock }

func (m *BillingMock) EnsureCustomer(ctx context.Context, clerkID, email string) (string, error) {
	args := m.Called(ctx, clerkID, email)
	return args.String(0), args.Error(1)
}
func (m *BillingMock) CreateCheckoutSession(ctx context.Context, customerID, priceID string) (string, error) {
	args := m.Called(ctx, customerID, priceID)
	return args.String(0), args.Error(1)
}
func (m *BillingMock) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}
func (m *BillingMock) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}
func (m *BillingMock) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
	args := m.Called(ctx, subscriptionID, cancel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}
func (m *BillingMock) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

// DedupMock отмечает события обработанными в памяти, как это делает redis SetNX.
type DedupMock struct {
	seen map[string]struct{}
	err  error
}

func newDedupMock() *DedupMock { return &DedupMock{seen: make(map[string]struct{})} }

func (d *DedupMock) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}

func (d *DedupMock) Invalidate(_ context.Context, key string) error {
	if d.err != nil {
		return d.err
	}
	delete(d.seen, key)
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestHandleIdentityCreated(t *testing.T) {
	repo := new(RepoMock)
	repo.On("UpsertAccount", mock.Anything, mock.MatchedBy(func(a models.Account) bool {
		return a.ClerkID == "user_1" &&
			a.Email == "user@example.com" &&
			a.SubscriptionPlanID == models.FreePlanID &&
			a.SubscriptionStatus == string(subscription.StatusFree)
	})).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleIdentityCreated(context.Background(), IdentityEvent{
		ID: "evt_1", ClerkID: "user_1", Email: "user@example.com", Name: "User",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleIdentityCreatedMissingEmail(t *testing.T) {
	repo := new(RepoMock)
	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())

	err := svc.HandleIdentityCreated(context.Background(), IdentityEvent{ID: "evt_1", ClerkID: "user_1"})
	assert.ErrorIs(t, err, ErrMissingEmail)
	repo.AssertNotCalled(t, "UpsertAccount", mock.Anything, mock.Anything)
}

func TestHandleIdentityCreatedDuplicateEvent(t *testing.T) {
	repo := new(RepoMock)
	repo.On("UpsertAccount", mock.Anything, mock.Anything).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	event := IdentityEvent{ID: "evt_1", ClerkID: "user_1", Email: "user@example.com"}

	require.NoError(t, svc.HandleIdentityCreated(context.Background(), event))
	// Повторная доставка того же события — no-op.
	require.NoError(t, svc.HandleIdentityCreated(context.Background(), event))

	repo.AssertNumberOfCalls(t, "UpsertAccount", 1)
}

func TestHandleIdentityCreatedRetryAfterFailure(t *testing.T) {
	repo := new(RepoMock)
	repo.On("UpsertAccount", mock.Anything, mock.Anything).
		Return(errors.New("db down")).Once()
	repo.On("UpsertAccount", mock.Anything, mock.Anything).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	event := IdentityEvent{ID: "evt_1", ClerkID: "user_1", Email: "user@example.com"}

	require.Error(t, svc.HandleIdentityCreated(context.Background(), event))

	// Неудавшаяся мутация не должна оставлять отметку о событии:
	// повторная доставка обязана пройти и создать аккаунт.
	require.NoError(t, svc.HandleIdentityCreated(context.Background(), event))

	repo.AssertNumberOfCalls(t, "UpsertAccount", 2)
}

func TestHandleSubscriptionUpdatedRetryAfterFailure(t *testing.T) {
	repo := new(RepoMock)
	account := &models.Account{
		ClerkID:            "user_1",
		SubscriptionPlanID: models.FreePlanID,
		SubscriptionStatus: string(subscription.StatusFree),
	}
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").Return(account, nil)
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1", mock.Anything).
		Return(errors.New("db down")).Once()
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1", mock.Anything).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	sub := billing.Subscription{
		ID: "sub_1", CustomerID: "cus_1", Status: "active",
		PriceID: "price_pro_monthly",
	}

	require.Error(t, svc.HandleSubscriptionUpdated(context.Background(), "evt_sub", sub))
	require.NoError(t, svc.HandleSubscriptionUpdated(context.Background(), "evt_sub", sub))

	repo.AssertNumberOfCalls(t, "UpdateSubscriptionFields", 2)
}

func TestHandleIdentityCreatedDedupUnavailable(t *testing.T) {
	repo := new(RepoMock)
	repo.On("UpsertAccount", mock.Anything, mock.Anything).Return(nil).Once()

	dedup := newDedupMock()
	dedup.err = errors.New("redis down")

	// Недоступный дедупликатор не блокирует обработку.
	svc := New(repo, new(BillingMock), dedup, newNoopLogger())
	err := svc.HandleIdentityCreated(context.Background(), IdentityEvent{
		ID: "evt_1", ClerkID: "user_1", Email: "user@example.com",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleIdentityUpdated(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByClerkID", mock.Anything, "user_1").
		Return(&models.Account{ClerkID: "user_1", Email: "old@example.com"}, nil).Once()
	repo.On("UpdateEmail", mock.Anything, "user_1", "new@example.com").Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleIdentityUpdated(context.Background(), IdentityEvent{
		ID: "evt_2", ClerkID: "user_1", Email: "new@example.com",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleIdentityUpdatedSameEmail(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByClerkID", mock.Anything, "user_1").
		Return(&models.Account{ClerkID: "user_1", Email: "same@example.com"}, nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleIdentityUpdated(context.Background(), IdentityEvent{
		ID: "evt_2", ClerkID: "user_1", Email: "same@example.com",
	})
	require.NoError(t, err)
	repo.AssertNotCalled(t, "UpdateEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleIdentityDeletedMissingAccount(t *testing.T) {
	repo := new(RepoMock)
	repo.On("DeleteAccount", mock.Anything, "user_1").Return(repository.ErrAccountNotFound).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleIdentityDeleted(context.Background(), IdentityEvent{ID: "evt_3", ClerkID: "user_1"})
	assert.NoError(t, err, "deleting an already deleted account is not an error")
}

func TestHandleSubscriptionUpdated(t *testing.T) {
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").
		Return(&models.Account{
			ClerkID:            "user_1",
			SubscriptionPlanID: models.FreePlanID,
			SubscriptionStatus: string(subscription.StatusFree),
		}, nil).Once()
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1",
		mock.MatchedBy(func(f models.SubscriptionFields) bool {
			return f.PlanID == "pro" &&
				f.Status == string(subscription.StatusActive) &&
				f.SubscriptionID != nil && *f.SubscriptionID == "sub_1" &&
				f.AutoRenew != nil && *f.AutoRenew &&
				f.CurrentPeriodEnd != nil && f.CurrentPeriodEnd.Equal(periodEnd)
		})).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleSubscriptionUpdated(context.Background(), "evt_4", billing.Subscription{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		PriceID:          "price_pro_monthly",
		CurrentPeriodEnd: periodEnd,
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleSubscriptionUpdatedCancelAtPeriodEnd(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").
		Return(&models.Account{
			ClerkID:            "user_1",
			SubscriptionPlanID: "pro",
			SubscriptionStatus: string(subscription.StatusActive),
		}, nil).Once()
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1",
		mock.MatchedBy(func(f models.SubscriptionFields) bool {
			return f.Status == string(subscription.StatusCanceled) &&
				f.AutoRenew != nil && !*f.AutoRenew
		})).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleSubscriptionUpdated(context.Background(), "evt_5", billing.Subscription{
		ID:                "sub_1",
		CustomerID:        "cus_1",
		Status:            "active",
		PriceID:           "price_pro_monthly",
		CancelAtPeriodEnd: true,
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleSubscriptionUpdatedUnlinkedCustomer(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_ghost").
		Return(nil, repository.ErrAccountNotFound).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleSubscriptionUpdated(context.Background(), "evt_6", billing.Subscription{
		CustomerID: "cus_ghost", Status: "active",
	})
	assert.NoError(t, err, "event for unlinked customer is a logged no-op")
	repo.AssertNotCalled(t, "UpdateSubscriptionFields", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleSubscriptionUpdatedUndefinedTransition(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").
		Return(&models.Account{
			ClerkID:            "user_1",
			SubscriptionPlanID: models.FreePlanID,
			SubscriptionStatus: string(subscription.StatusFree),
		}, nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleSubscriptionUpdated(context.Background(), "evt_7", billing.Subscription{
		CustomerID: "cus_1", Status: "past_due", PriceID: "price_pro_monthly",
	})
	assert.Error(t, err, "free -> past_due is not a defined transition")
	repo.AssertNotCalled(t, "UpdateSubscriptionFields", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleSubscriptionDeleted(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").
		Return(&models.Account{
			ClerkID:            "user_1",
			SubscriptionPlanID: "pro",
			SubscriptionStatus: string(subscription.StatusActive),
		}, nil).Once()
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1",
		mock.MatchedBy(func(f models.SubscriptionFields) bool {
			return f.PlanID == models.FreePlanID &&
				f.Status == string(subscription.StatusFree) &&
				f.SubscriptionID == nil &&
				f.CurrentPeriodEnd == nil
		})).Return(nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	err := svc.HandleSubscriptionDeleted(context.Background(), "evt_8", billing.Subscription{
		ID: "sub_1", CustomerID: "cus_1", Status: "canceled",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestToggleAutoRenew(t *testing.T) {
	prov := new(BillingMock)
	prov.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.Subscription{
			ID: "sub_1", CustomerID: "cus_1", Status: "active",
			PriceID: "price_pro_monthly", CancelAtPeriodEnd: false,
		}, nil).Once()
	// Текущее состояние перечитано, флаг инвертирован.
	prov.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", true).
		Return(&billing.Subscription{
			ID: "sub_1", CustomerID: "cus_1", Status: "active",
			PriceID: "price_pro_monthly", CancelAtPeriodEnd: true,
		}, nil).Once()

	repo := new(RepoMock)
	repo.On("GetAccountByStripeCustomerID", mock.Anything, "cus_1").
		Return(&models.Account{
			ClerkID:            "user_1",
			SubscriptionPlanID: "pro",
			SubscriptionStatus: string(subscription.StatusActive),
		}, nil).Once()
	repo.On("UpdateSubscriptionFields", mock.Anything, "user_1",
		mock.MatchedBy(func(f models.SubscriptionFields) bool {
			return f.Status == string(subscription.StatusCanceled) &&
				f.AutoRenew != nil && !*f.AutoRenew
		})).Return(nil).Once()

	svc := New(repo, prov, newDedupMock(), newNoopLogger())
	updated, err := svc.ToggleAutoRenew(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, updated.CancelAtPeriodEnd)
	prov.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestCreateCheckoutSession(t *testing.T) {
	tests := []struct {
		name       string
		planID     string
		account    *models.Account
		setupMocks func(r *RepoMock, b *BillingMock)
		wantURL    string
		wantErr    bool
	}{
		{
			name:   "new billing customer is created and linked",
			planID: "pro",
			account: &models.Account{
				ClerkID: "user_1", Email: "user@example.com",
			},
			setupMocks: func(r *RepoMock, b *BillingMock) {
				b.On("EnsureCustomer", mock.Anything, "user_1", "user@example.com").
					Return("cus_new", nil).Once()
				r.On("SetStripeCustomerID", mock.Anything, "user_1", "cus_new").Return(nil).Once()
				b.On("CreateCheckoutSession", mock.Anything, "cus_new", "price_pro_monthly").
					Return("https://checkout.example/s_1", nil).Once()
			},
			wantURL: "https://checkout.example/s_1",
		},
		{
			name:   "existing customer is reused",
			planID: "business",
			account: func() *models.Account {
				id := "cus_1"
				return &models.Account{ClerkID: "user_1", Email: "user@example.com", StripeCustomerID: &id}
			}(),
			setupMocks: func(r *RepoMock, b *BillingMock) {
				b.On("CreateCheckoutSession", mock.Anything, "cus_1", "price_business_monthly").
					Return("https://checkout.example/s_2", nil).Once()
			},
			wantURL: "https://checkout.example/s_2",
		},
		{
			name:       "free plan is not purchasable",
			planID:     models.FreePlanID,
			account:    &models.Account{ClerkID: "user_1"},
			setupMocks: func(_ *RepoMock, _ *BillingMock) {},
			wantErr:    true,
		},
		{
			name:       "unknown plan",
			planID:     "enterprise",
			account:    &models.Account{ClerkID: "user_1"},
			setupMocks: func(_ *RepoMock, _ *BillingMock) {},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			prov := new(BillingMock)
			if !tt.wantErr {
				repo.On("GetAccountByClerkID", mock.Anything, "user_1").Return(tt.account, nil).Once()
			}
			tt.setupMocks(repo, prov)

			svc := New(repo, prov, newDedupMock(), newNoopLogger())
			url, err := svc.CreateCheckoutSession(context.Background(), "user_1", tt.planID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)
			repo.AssertExpectations(t)
			prov.AssertExpectations(t)
		})
	}
}

func TestCreatePortalSessionWithoutCustomer(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetAccountByClerkID", mock.Anything, "user_1").
		Return(&models.Account{ClerkID: "user_1"}, nil).Once()

	svc := New(repo, new(BillingMock), newDedupMock(), newNoopLogger())
	_, err := svc.CreatePortalSession(context.Background(), "user_1")
	assert.Error(t, err, "portal requires an existing billing customer")
}
