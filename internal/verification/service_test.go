package verification

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySingleUse(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
	require.NoError(t, err)
	require.True(t, ok)

	// Повторное использование того же кода не проходит.
	ok, err = svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyWrongCode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	// Неверная попытка не сжигает действующий код.
	ok, err = svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyUnknownSubject(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	ok, err := svc.Verify(ctx, "nobody@example.com", models.PurposePasswordReset, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyExpiredCode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), time.Minute, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	// Сдвигаем часы сервиса за момент истечения.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurposeIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	// Код сброса пароля не работает для смены почты.
	ok, err := svc.Verify(ctx, "user@example.com", models.PurposeEmailChange, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssueOverwritesPreviousCode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	first, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	if first != second {
		ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, first)
		require.NoError(t, err)
		assert.False(t, ok, "old code must be invalidated by reissue")
	}

	ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), DefaultTTL, newNoopLogger())

	code, err := svc.Issue(ctx, "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var successes atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Verify(ctx, "user@example.com", models.PurposePasswordReset, code)
			assert.NoError(t, err)
			if ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// Одноразовость под гонкой: код достаётся ровно одному.
	assert.Equal(t, int32(1), successes.Load())
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "a", models.VerificationCode{
		Code: "111111", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.Set(ctx, "b", models.VerificationCode{
		Code: "222222", ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, store.Sweep(ctx, time.Now()))

	store.mu.Lock()
	defer store.mu.Unlock()
	_, found := store.codes["a"]
	assert.False(t, found)
	_, found = store.codes["b"]
	assert.True(t, found)
}
