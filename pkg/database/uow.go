// Package database cung cấp unit of work trên bun: một object sở hữu
// transaction, repositories bind vào nó, commit/rollback atomic cho cả
// business operation.
package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"accesslog-backend/pkg/apperror"
)

// UnitOfWork sở hữu một database session và (khi Begin được gọi) một
// transaction. Không safe cho concurrent use — mỗi goroutine tạo UoW riêng.
//
// Hai mode:
//   - owned:    tạo từ New, UoW tự begin/commit/rollback transaction
//   - borrowed: tạo từ Borrow quanh session có sẵn (vd tx của UoW khác);
//     lifecycle thuộc về owner, Commit/Rollback ở đây là lỗi
type UnitOfWork struct {
	root     *bun.DB
	tx       bun.Tx
	active   bool
	borrowed bun.IDB
}

func New(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{root: db}
}

// Borrow wrap một session có sẵn. Caller giữ quyền commit/rollback.
func Borrow(db bun.IDB) *UnitOfWork {
	return &UnitOfWork{borrowed: db}
}

// DB trả về session hiện tại: transaction khi active, connection pool
// (hoặc borrowed session) khi không. Repository luôn lấy session qua
// đây để mọi query trong UoW đi chung transaction.
func (u *UnitOfWork) DB() bun.IDB {
	if u.active {
		return u.tx
	}
	if u.borrowed != nil {
		return u.borrowed
	}
	return u.root
}

// InTransaction cho biết UoW đang giữ transaction mở hay không.
func (u *UnitOfWork) InTransaction() bool { return u.active }

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.borrowed != nil {
		return apperror.InvalidOperation("cannot begin transaction on borrowed session")
	}
	if u.active {
		return apperror.InvalidOperation("transaction already started")
	}
	tx, err := u.root.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return apperror.Database("begin transaction failed").WithCause(err)
	}
	u.tx = tx
	u.active = true
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.borrowed != nil {
		return apperror.InvalidOperation("cannot commit borrowed session")
	}
	if !u.active {
		return apperror.InvalidOperation("no transaction to commit")
	}
	u.active = false
	if err := u.tx.Commit(); err != nil {
		return apperror.Database("commit failed").WithCause(err)
	}
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if u.borrowed != nil {
		return apperror.InvalidOperation("cannot rollback borrowed session")
	}
	if !u.active {
		return apperror.InvalidOperation("no transaction to rollback")
	}
	u.active = false
	if err := u.tx.Rollback(); err != nil {
		return apperror.Database("rollback failed").WithCause(err)
	}
	return nil
}

// Flush tồn tại cho call-site symmetry: statement thực thi ngay khi
// repository chạy query nên không có pending write nào cần đẩy xuống.
func (u *UnitOfWork) Flush(ctx context.Context) error {
	_ = ctx
	return nil
}

// Close rollback transaction còn mở. Idempotent, dùng được trong defer.
func (u *UnitOfWork) Close() {
	if u.active {
		u.active = false
		_ = u.tx.Rollback()
	}
}

// Run chạy fn trong một transaction: commit khi fn trả nil, rollback
// khi fn trả error hoặc panic (panic được re-raise sau khi rollback).
func Run(ctx context.Context, db *bun.DB, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	uow := New(db)
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			uow.Close()
			panic(p)
		}
	}()

	if err := fn(ctx, uow); err != nil {
		uow.Close()
		return err
	}
	return uow.Commit()
}

// RunResult như Run nhưng trả kết quả từ fn.
func RunResult[T any](ctx context.Context, db *bun.DB, fn func(ctx context.Context, uow *UnitOfWork) (T, error)) (T, error) {
	var zero T
	uow := New(db)
	if err := uow.Begin(ctx); err != nil {
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			uow.Close()
			panic(p)
		}
	}()

	result, err := fn(ctx, uow)
	if err != nil {
		uow.Close()
		return zero, err
	}
	if err := uow.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}
