// Package console holds the client-side state of the operator and customer
// screens. Every mutation goes to the API first; the local copy changes only
// after the API acknowledged it.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/cablesync/internal/client"
	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/model"
)

// ErrDeclined is returned when the operator did not confirm an action.
var ErrDeclined = errors.New("action not confirmed")

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(prompt string) bool

type AdminAPI interface {
	ListCustomers(ctx context.Context, status model.Status, orderBy string) ([]client.Row, error)
	Activate(ctx context.Context, id, start, end string) (client.Row, error)
	EndService(ctx context.Context, id string) (client.Row, error)
	ProcessCancellation(ctx context.Context, id string) (client.Row, error)
	DeleteCustomer(ctx context.Context, id string) error
}

// Admin mirrors the customer list an operator is looking at.
type Admin struct {
	api     AdminAPI
	confirm ConfirmFunc

	mu      sync.Mutex
	rows    []client.Row
	status  model.Status
	orderBy string
}

func NewAdmin(api AdminAPI, confirm ConfirmFunc) *Admin {
	if confirm == nil {
		confirm = func(string) bool { return false }
	}
	return &Admin{api: api, confirm: confirm}
}

// Load replaces the list with a fresh read. An empty status means all.
func (a *Admin) Load(ctx context.Context, status model.Status, orderBy string) error {
	rows, err := a.api.ListCustomers(ctx, status, orderBy)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}
	a.mu.Lock()
	a.rows, a.status, a.orderBy = rows, status, orderBy
	a.mu.Unlock()
	return nil
}

func (a *Admin) Rows() []client.Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]client.Row(nil), a.rows...)
}

// Counts tallies the loaded rows per display bucket.
func (a *Admin) Counts() map[model.Bucket]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := map[model.Bucket]int{}
	for _, r := range a.rows {
		out[r.Status.Bucket()]++
	}
	return out
}

// Activate checks both dates locally so a bad form never reaches the API.
// It returns the row as the API acknowledged it.
func (a *Admin) Activate(ctx context.Context, id, start, end string) (client.Row, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return client.Row{}, lifecycle.ErrMissingDates
	}
	s, err := time.Parse(model.InputDateLayout, start)
	if err != nil {
		return client.Row{}, fmt.Errorf("%w: start %q", lifecycle.ErrInvalidDates, start)
	}
	e, err := time.Parse(model.InputDateLayout, end)
	if err != nil {
		return client.Row{}, fmt.Errorf("%w: end %q", lifecycle.ErrInvalidDates, end)
	}
	if e.Before(s) {
		return client.Row{}, fmt.Errorf("%w: end before start", lifecycle.ErrInvalidDates)
	}

	row, err := a.api.Activate(ctx, id, start, end)
	if err != nil {
		return client.Row{}, err
	}
	a.replace(id, row)
	return row, nil
}

func (a *Admin) EndService(ctx context.Context, id string) (client.Row, error) {
	row, err := a.api.EndService(ctx, id)
	if err != nil {
		return client.Row{}, err
	}
	a.replace(id, row)
	return row, nil
}

func (a *Admin) ProcessCancellation(ctx context.Context, id string) (client.Row, error) {
	if !a.confirm(fmt.Sprintf("Are you sure you want to process the cancellation for %s?", a.label(id))) {
		return client.Row{}, ErrDeclined
	}
	row, err := a.api.ProcessCancellation(ctx, id)
	if err != nil {
		return client.Row{}, err
	}
	a.replace(id, row)
	return row, nil
}

func (a *Admin) Delete(ctx context.Context, id string) error {
	if !a.confirm(fmt.Sprintf("Are you sure you want to delete %s?", a.label(id))) {
		return ErrDeclined
	}
	if err := a.api.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	a.mu.Lock()
	a.rows = removeRow(a.rows, id)
	a.mu.Unlock()
	return nil
}

// replace swaps in the acknowledged row, dropping it when it no longer
// matches the active status filter.
func (a *Admin) replace(id string, row client.Row) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != "" && row.Status != a.status {
		a.rows = removeRow(a.rows, id)
		return
	}
	for i := range a.rows {
		if a.rows[i].ID == id {
			a.rows[i] = row
			return
		}
	}
}

func (a *Admin) label(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.rows {
		if r.ID == id {
			name := strings.TrimSpace(r.FirstName + " " + r.LastName)
			if name != "" {
				return name
			}
			return r.Email
		}
	}
	return id
}

func removeRow(rows []client.Row, id string) []client.Row {
	out := rows[:0]
	for _, r := range rows {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
