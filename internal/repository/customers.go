package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateSubscription is returned when a write would give a second
// customer the same subscription id (unique index uq_customers_subscription).
var ErrDuplicateSubscription = errors.New("subscription id already assigned to another customer")

// ListFilter drives the admin listing. Empty Status means all.
type ListFilter struct {
	Status       model.Status
	ExcludeEmail string
	OrderBy      string
}

// orderColumns whitelists sortable fields (API name -> column).
var orderColumns = map[string]string{
	"email":            "email",
	"firstName":        "first_name",
	"lastName":         "last_name",
	"status":           "status",
	"serviceStartDate": "service_start_date",
	"serviceEndDate":   "service_end_date",
	"createdAt":        "created_at",
	"updatedAt":        "updated_at",
}

// OrderColumn resolves a sort field; ok is false for unknown fields.
func OrderColumn(field string) (string, bool) {
	col, ok := orderColumns[strings.TrimSpace(field)]
	return col, ok
}

type CustomersRepository interface {
	Get(ctx context.Context, id string) (*model.Customer, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Customer, error)
	FindByEmail(ctx context.Context, email string) (*model.Customer, error)
	ListBySubscriptionID(ctx context.Context, tx *sqlx.Tx, subscriptionID string) ([]model.Customer, error)
	List(ctx context.Context, f ListFilter) ([]model.Customer, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, c model.Customer) error
	Delete(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
}

type CustomersRepositoryImpl struct {
	db *sqlx.DB
}

func NewCustomersRepository(db *sqlx.DB) *CustomersRepositoryImpl {
	return &CustomersRepositoryImpl{db: db}
}

var _ CustomersRepository = (*CustomersRepositoryImpl)(nil)

const customerColumns = `id, first_name, last_name, email, phone, devices, status,
	subscription_id, service_start_date, service_end_date, created_at, updated_at`

func (r *CustomersRepositoryImpl) Get(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetForUpdate locks the row for the rest of tx.
func (r *CustomersRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Customer, error) {
	var c model.Customer
	err := tx.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE id = ? LIMIT 1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByEmail returns the first record (by id) carrying email.
func (r *CustomersRepositoryImpl) FindByEmail(ctx context.Context, email string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.GetContext(ctx, &c, `
		SELECT `+customerColumns+`
		  FROM customers
		 WHERE email = ?
		 ORDER BY id
		 LIMIT 1
	`, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListBySubscriptionID returns every record holding subscriptionID, first
// match first. With a tx the rows stay locked until it ends.
func (r *CustomersRepositoryImpl) ListBySubscriptionID(ctx context.Context, tx *sqlx.Tx, subscriptionID string) ([]model.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE subscription_id = ? ORDER BY id`
	var rows []model.Customer
	if tx != nil {
		if err := tx.SelectContext(ctx, &rows, q+` FOR UPDATE`, subscriptionID); err != nil {
			return nil, err
		}
		return rows, nil
	}
	if err := r.db.SelectContext(ctx, &rows, q, subscriptionID); err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns the full matching set; there is no pagination.
func (r *CustomersRepositoryImpl) List(ctx context.Context, f ListFilter) ([]model.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE 1 = 1`
	var args []any

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.ExcludeEmail != "" {
		q += " AND email <> ?"
		args = append(args, f.ExcludeEmail)
	}

	col, ok := OrderColumn(f.OrderBy)
	if !ok {
		col = "email"
	}
	q += " ORDER BY " + col + ", id"

	rows := []model.Customer{}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert writes every column of c in one statement.
func (r *CustomersRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, c model.Customer) error {
	const q = `
		INSERT INTO customers
		    (id, first_name, last_name, email, phone, devices, status,
		     subscription_id, service_start_date, service_end_date, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    first_name         = VALUES(first_name),
		    last_name          = VALUES(last_name),
		    email              = VALUES(email),
		    phone              = VALUES(phone),
		    devices            = VALUES(devices),
		    status             = VALUES(status),
		    subscription_id    = VALUES(subscription_id),
		    service_start_date = VALUES(service_start_date),
		    service_end_date   = VALUES(service_end_date),
		    updated_at         = NOW()
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Devices, c.Status.String(),
			c.SubscriptionID, c.ServiceStartDate, c.ServiceEndDate,
		)
		return translate(err)
	})
}

// Delete removes the record; false when nothing matched.
func (r *CustomersRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	var n int64
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 && strings.Contains(me.Message, "uq_customers_subscription") {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, me.Message)
	}
	return err
}
