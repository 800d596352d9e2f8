// Package gateway funnels every outbound provider call through one
// retry/timeout policy. Provider clients wrap their HTTP work in Call; nothing
// else in the codebase sleeps or retries against an external system.
package gateway

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	er "github.com/noyaclicks-jpg/crmhost/internal/errors"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
)

type Policy struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}

func PolicyFromConfig(cfg *config.GatewayConfig) Policy {
	policy := DefaultPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelayMs > 0 {
		policy.RetryDelay = time.Duration(cfg.RetryDelayMs) * time.Millisecond
	}
	if cfg.TimeoutSeconds > 0 {
		policy.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return policy
}

// Call runs fn up to policy.MaxRetries times with a per-attempt deadline and a
// linearly growing pause between attempts (delay, 2*delay, ...). An auth
// failure is returned immediately; retrying with the same credential cannot
// succeed and hammering the provider risks a lockout. Deterministic provider
// rejections (not found, conflict) are likewise not retried. The first
// success wins, otherwise the last error is returned.
func Call[T any](ctx context.Context, log logger.Logger, service enum.ProviderService, operation string, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderGateway.Call")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.SetTag("provider.service", service.String())
	span.SetTag("provider.operation", operation)

	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			span.LogFields(tracingLog.Int("attempts", attempt))
			return result, nil
		}
		// fold per-attempt deadline hits onto one sentinel callers can match
		if errors.Is(err, context.DeadlineExceeded) {
			err = er.ErrConnectionTimeout
		}
		lastErr = err

		log.Warnf("provider call failed: service=%s operation=%s attempt=%d/%d err=%v",
			service, operation, attempt, policy.MaxRetries, err)
		span.LogFields(
			tracingLog.Int("attempt", attempt),
			tracingLog.String("error", err.Error()),
		)

		if !retryable(err) {
			tracing.TraceErr(span, err)
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		select {
		case <-time.After(policy.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			tracing.TraceErr(span, ctx.Err())
			return zero, ctx.Err()
		}
	}

	tracing.TraceErr(span, lastErr)
	return zero, errors.Wrapf(lastErr, "%s %s failed after %d attempts", service, operation, policy.MaxRetries)
}

func retryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	// transport-level failures (timeouts, resets) are worth another try
	return true
}
