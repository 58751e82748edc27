package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"accesslog-backend/pkg/apperror"
)

// Postgres error codes cần phân loại riêng
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// TranslateError convert driver error thành taxonomy error, dành cho
// domain repository tự build query ngoài generic API.
func TranslateError(err error, op string) error {
	return translate(err, op)
}

// translate convert driver error thành taxonomy error.
// Nhận diện cả Postgres (pgconn) lẫn SQLite (string match) để test suite
// chạy trên sqlite đi qua đúng error path như production.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.Duplicate("record already exists").
				WithDetail(map[string]string{"constraint": pgErr.ConstraintName}).
				WithCause(err)
		case pgForeignKeyViolation:
			return apperror.Database("referenced record does not exist").
				WithDetail(map[string]string{"constraint": pgErr.ConstraintName}).
				WithCause(err)
		}
		return apperror.Database(op + " failed").WithCause(err)
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return apperror.Duplicate("record already exists").WithCause(err)
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return apperror.Database("referenced record does not exist").WithCause(err)
	}

	return apperror.Database(op + " failed").WithCause(err)
}
