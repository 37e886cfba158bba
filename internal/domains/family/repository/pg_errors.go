package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"familytree-backend/internal/domains/family/model"
)

// SQLSTATE codes được map sang domain errors
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCheckViolation       = "23514"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgQueryCanceled        = "57014"
)

// mapPgError chuyển lỗi Postgres thành error của domain, giữ nguyên error gốc trong chain
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgLockNotAvailable, pgQueryCanceled:
		return fmt.Errorf("%w: %v", model.ErrResourceBusy, err)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %v", model.ErrVersionConflict, err)
	case pgCheckViolation, pgUniqueViolation, pgForeignKeyViolation:
		return &model.ValidationError{Index: -1, Field: pgErr.ConstraintName, Message: pgErr.Message}
	}
	return err
}
