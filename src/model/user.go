package model

import "time"

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:60;uniqueIndex" json:"username"`
	// PasswordHash is a bcrypt hash. Authentication itself lives in the
	// dashboard service; the engine only carries the column so seeded demo
	// accounts match production rows.
	PasswordHash string    `gorm:"column:password_hash;type:text" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
