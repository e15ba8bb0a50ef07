package customers

import (
	"context"
	"sort"

	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
)

// fakeCustomers is an in-memory CustomersRepository; it ignores tx.
type fakeCustomers struct {
	rows   map[string]model.Customer
	filter repository.ListFilter
	calls  int

	getErr    error
	listErr   error
	upsertErr error
}

func newFakeCustomers(rows ...model.Customer) *fakeCustomers {
	f := &fakeCustomers{rows: map[string]model.Customer{}}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

var _ repository.CustomersRepository = (*fakeCustomers)(nil)

func (f *fakeCustomers) Get(_ context.Context, id string) (*model.Customer, error) {
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCustomers) GetForUpdate(ctx context.Context, _ *sqlx.Tx, id string) (*model.Customer, error) {
	return f.Get(ctx, id)
}

func (f *fakeCustomers) FindByEmail(_ context.Context, email string) (*model.Customer, error) {
	f.calls++
	for _, c := range f.sorted() {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCustomers) ListBySubscriptionID(_ context.Context, _ *sqlx.Tx, sub string) ([]model.Customer, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Customer
	for _, c := range f.sorted() {
		if c.Subscription() == sub {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCustomers) List(_ context.Context, lf repository.ListFilter) ([]model.Customer, error) {
	f.calls++
	f.filter = lf
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Customer{}
	for _, c := range f.sorted() {
		if lf.Status != "" && c.Status != lf.Status {
			continue
		}
		if lf.ExcludeEmail != "" && c.Email == lf.ExcludeEmail {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCustomers) Upsert(_ context.Context, _ *sqlx.Tx, c model.Customer) error {
	f.calls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[c.ID] = c
	return nil
}

func (f *fakeCustomers) Delete(_ context.Context, _ *sqlx.Tx, id string) (bool, error) {
	f.calls++
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeCustomers) sorted() []model.Customer {
	out := make([]model.Customer, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type mockOutbox struct{ mock.Mock }

func (m *mockOutbox) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	args := m.Called(ctx, tx, aggregate, aggregateID, topic, payload)
	return args.Error(0)
}
