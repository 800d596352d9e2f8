package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	er "github.com/noyaclicks-jpg/crmhost/internal/errors"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestCall_SucceedsFirstAttempt(t *testing.T) {
	attempts := 0

	result, err := Call(context.Background(), getLogger(), enum.ProviderServiceNetlify, "get_zone", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "zone-id", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "zone-id", result)
	assert.Equal(t, 1, attempts)
}

func TestCall_RetriesTransientFailures(t *testing.T) {
	attempts := 0

	result, err := Call(context.Background(), getLogger(), enum.ProviderServiceNetlify, "create_zone", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewProviderError(enum.ProviderServiceNetlify, http.StatusServiceUnavailable, "try later")
		}
		return "zone-id", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "zone-id", result)
	assert.Equal(t, 3, attempts)
}

func TestCall_ExhaustedRetriesReturnsLastError(t *testing.T) {
	attempts := 0

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceForwardEmail, "get_domain", testPolicy(), func(ctx context.Context) (*struct{}, error) {
		attempts++
		return nil, NewProviderError(enum.ProviderServiceForwardEmail, http.StatusInternalServerError, "boom")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 3 attempts")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
}

func TestCall_AuthFailureShortCircuits(t *testing.T) {
	attempts := 0

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceNetlify, "get_zone", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "", NewProviderError(enum.ProviderServiceNetlify, http.StatusUnauthorized, "bad token")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsAuth(err))
}

func TestCall_NotFoundNotRetried(t *testing.T) {
	attempts := 0

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceForwardEmail, "get_domain", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "", NewProviderError(enum.ProviderServiceForwardEmail, http.StatusNotFound, "no such domain")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsNotFound(err))
}

func TestCall_ConflictNotRetried(t *testing.T) {
	attempts := 0

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceForwardEmail, "create_domain", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "", NewProviderError(enum.ProviderServiceForwardEmail, http.StatusConflict, "already exists")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsConflict(err))
}

func TestCall_RateLimitRetried(t *testing.T) {
	attempts := 0

	result, err := Call(context.Background(), getLogger(), enum.ProviderServiceForwardEmail, "list_aliases", testPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, NewProviderError(enum.ProviderServiceForwardEmail, http.StatusTooManyRequests, "slow down")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, attempts)
}

func TestCall_TransportErrorRetried(t *testing.T) {
	attempts := 0

	result, err := Call(context.Background(), getLogger(), enum.ProviderServiceZohoImap, "fetch", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

func TestCall_PauseBetweenAttemptsGrows(t *testing.T) {
	policy := Policy{
		MaxRetries: 3,
		RetryDelay: 40 * time.Millisecond,
		Timeout:    time.Second,
	}
	var attemptTimes []time.Time

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceNetlify, "create_zone", policy, func(ctx context.Context) (string, error) {
		attemptTimes = append(attemptTimes, time.Now())
		return "", NewProviderError(enum.ProviderServiceNetlify, http.StatusInternalServerError, "boom")
	})

	require.Error(t, err)
	require.Len(t, attemptTimes, 3)

	firstPause := attemptTimes[1].Sub(attemptTimes[0])
	secondPause := attemptTimes[2].Sub(attemptTimes[1])
	assert.GreaterOrEqual(t, firstPause, policy.RetryDelay)
	assert.GreaterOrEqual(t, secondPause, 2*policy.RetryDelay)
	assert.Greater(t, secondPause, firstPause)
}

func TestCall_AttemptTimeoutMapsToConnectionTimeout(t *testing.T) {
	policy := Policy{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Timeout:    10 * time.Millisecond,
	}
	attempts := 0

	_, err := Call(context.Background(), getLogger(), enum.ProviderServiceForwardEmail, "create_domain", policy, func(ctx context.Context) (string, error) {
		attempts++
		<-ctx.Done()
		return "", ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, er.ErrConnectionTimeout)
}

func TestCall_CanceledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	_, err := Call(ctx, getLogger(), enum.ProviderServiceNetlify, "get_zone", testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		cancel()
		return "", NewProviderError(enum.ProviderServiceNetlify, http.StatusInternalServerError, "boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProviderError_Classification(t *testing.T) {
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 401, "").IsAuth())
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 403, "").IsAuth())
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 404, "").IsNotFound())
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 409, "").IsConflict())
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 429, "").Retryable())
	assert.True(t, NewProviderError(enum.ProviderServiceNetlify, 503, "").Retryable())
	assert.False(t, NewProviderError(enum.ProviderServiceNetlify, 400, "").Retryable())
	assert.False(t, NewProviderError(enum.ProviderServiceNetlify, 404, "").Retryable())
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(nil)
	assert.Equal(t, DefaultPolicy(), policy)
}
