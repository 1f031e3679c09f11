package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/pod-fulfillment/internal/domain/fault"
)

const uniqueViolation = "23505"

// SQLSTATEs worth retrying: serialization failure, deadlock, lock not
// available, admin shutdown, crash shutdown, cannot connect now, too many
// connections.
var retryableCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
	"57P01": true,
	"57P02": true,
	"57P03": true,
	"53300": true,
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if retryableCodes[pgErr.Code] {
			return fault.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fault.Transient(err)
	}
	return err
}
