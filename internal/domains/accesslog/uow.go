package accesslog

import (
	"context"

	"github.com/uptrace/bun"

	"accesslog-backend/internal/domains/accesslog/repository"
	"accesslog-backend/pkg/database"
)

// UnitOfWork của domain: unit of work chung + repositories bind vào
// session hiện tại. Bên trong transaction thì Logs()/Sessions() chạy
// trên transaction đó, bên ngoài thì chạy trên pool.
type UnitOfWork struct {
	*database.UnitOfWork
}

func NewUnitOfWork(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{UnitOfWork: database.New(db)}
}

// BorrowUnitOfWork wrap session có sẵn (vd transaction của UoW khác).
func BorrowUnitOfWork(db bun.IDB) *UnitOfWork {
	return &UnitOfWork{UnitOfWork: database.Borrow(db)}
}

func (u *UnitOfWork) Logs() *repository.LogRepository {
	return repository.NewLogRepository(u.DB())
}

func (u *UnitOfWork) Sessions() *repository.SessionRepository {
	return repository.NewSessionRepository(u.DB())
}

// Run chạy fn trong một transaction trên db:
// commit khi fn trả nil, rollback khi error hoặc panic.
func Run(ctx context.Context, db *bun.DB, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	return database.Run(ctx, db, func(ctx context.Context, base *database.UnitOfWork) error {
		return fn(ctx, &UnitOfWork{UnitOfWork: base})
	})
}
