package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// AdminsRepository answers whether a signed-in email belongs to staff.
type AdminsRepository interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, email string) error
}

type AdminsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAdminsRepository(db *sqlx.DB) *AdminsRepositoryImpl {
	return &AdminsRepositoryImpl{db: db}
}

var _ AdminsRepository = (*AdminsRepositoryImpl)(nil)

func (r *AdminsRepositoryImpl) IsAdmin(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM admins WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add is idempotent.
func (r *AdminsRepositoryImpl) Add(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admins (email, created_at) VALUES (?, NOW())
		ON DUPLICATE KEY UPDATE email = email
	`, strings.ToLower(strings.TrimSpace(email)))
	return err
}
