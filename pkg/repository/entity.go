package repository

import (
	"time"
)

// Entity là contract tối thiểu cho mọi persisted model: string UUID
// primary key do application cấp phát trước khi insert.
type Entity interface {
	EntityID() string
	SetEntityID(id string)
}

// Model là base struct embed vào mọi entity.
// ID được generate phía client (xem Repository.Create) nên bulk insert
// không cần round-trip lấy id về.
type Model struct {
	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp" json:"created_at"`
}

func (m *Model) EntityID() string { return m.ID }

func (m *Model) SetEntityID(id string) { m.ID = id }
