package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

// PostgreSQL error codes that indicate lock contention.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// classifyPostgres maps driver errors onto the domain taxonomy.
func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
		}
	}

	if isConnectivityError(err) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// classifyRedis maps go-redis errors onto the domain taxonomy. Domain errors
// returned from inside a transaction function pass through unchanged.
func classifyRedis(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrOutcomeUnknown):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	case isConnectivityError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// classifyCommit maps a failed COMMIT. A server error means the transaction
// was rolled back; any other failure leaves its outcome unknown.
func classifyCommit(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres("commit record", err)
	}
	return fmt.Errorf("commit record: %w: %w", domain.ErrOutcomeUnknown, err)
}

// uncertainWrite marks a connectivity failure after a write was sent. Dial
// failures never reached the server and stay retryable.
func uncertainWrite(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return err
	}
	if isConnectivityError(err) {
		return fmt.Errorf("%w: %w", domain.ErrOutcomeUnknown, err)
	}
	return err
}

func isConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
