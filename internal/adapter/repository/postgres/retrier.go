package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLSTATE codes after which a whole ledger transaction may be re-run.
const (
	sqlStateDeadlock             = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateLockNotAvailable     = "55P03"
	// class 08: connection exceptions; the transaction never committed
	sqlStateConnectionClass = "08"
)

// RetryPolicy bounds how often and how long a transaction is re-run.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy suits row-lock contention between concurrent settlements.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// Retrier implements usecase.Retrier. It re-runs an operation while it fails
// with a lock conflict or a dropped connection.
type Retrier struct {
	policy RetryPolicy
	logger zerolog.Logger
}

// NewRetrier creates a Retrier with DefaultRetryPolicy.
func NewRetrier(logger zerolog.Logger) *Retrier {
	return NewRetrierWithPolicy(DefaultRetryPolicy, logger)
}

// NewRetrierWithPolicy creates a Retrier with policy.
func NewRetrierWithPolicy(policy RetryPolicy, logger zerolog.Logger) *Retrier {
	return &Retrier{
		policy: policy,
		logger: logger.With().Str("component", "tx_retrier").Logger(),
	}
}

// Retry runs operation until it succeeds, fails permanently, or the policy
// is exhausted. The last error is returned unchanged.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = r.policy.MaxElapsedTime

	var b backoff.BackOff = backoff.WithMaxRetries(exp, r.policy.MaxRetries)
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}
		if _, ok := retryableState(err); !ok {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		state, _ := retryableState(err)
		r.logger.Warn().
			Err(err).
			Str("sqlstate", state).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transaction conflict, retrying")
	})
}

// retryableState reports the SQLSTATE of err and whether re-running the
// transaction may succeed.
func retryableState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch {
	case pgErr.Code == sqlStateDeadlock,
		pgErr.Code == sqlStateSerializationFailure,
		pgErr.Code == sqlStateLockNotAvailable:
		return pgErr.Code, true
	case strings.HasPrefix(pgErr.Code, sqlStateConnectionClass):
		return pgErr.Code, true
	default:
		return pgErr.Code, false
	}
}
