package http

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/service/customers"
	"github.com/jmehdipour/cablesync/internal/session"
)

// memCustomers runs the real lifecycle rules over an in-memory table.
type memCustomers struct {
	mu      sync.Mutex
	rows    map[string]model.Customer
	failErr error
}

func newMemCustomers(rows ...model.Customer) *memCustomers {
	m := &memCustomers{rows: map[string]model.Customer{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memCustomers) get(id string) model.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memCustomers) apply(cur model.Customer, req lifecycle.Request) (model.Customer, error) {
	if m.failErr != nil {
		return model.Customer{}, m.failErr
	}
	ch, err := lifecycle.Plan(cur, req)
	if err != nil {
		return model.Customer{}, err
	}
	next := ch.Apply(cur)
	if ch.Delete {
		delete(m.rows, cur.ID)
	} else {
		m.rows[cur.ID] = next
	}
	return next, nil
}

func (m *memCustomers) Me(_ context.Context, id session.Identity) (model.Customer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id.CustomerID()]; ok {
		return c, true, nil
	}
	return model.NewTransient(id.Email, id.FirstName, id.LastName), false, nil
}

func (m *memCustomers) Checkout(_ context.Context, id session.Identity, sub string, p lifecycle.Profile) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[id.CustomerID()]
	if !ok {
		cur = model.NewTransient(id.Email, id.FirstName, id.LastName)
	}
	return m.apply(cur, lifecycle.Request{Action: lifecycle.ActionCheckout, Actor: id.Actor(), SubscriptionID: sub, Profile: p})
}

func (m *memCustomers) List(_ context.Context, _ session.Identity, st model.Status, _ string) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := []model.Customer{}
	for _, c := range m.rows {
		if st == "" || c.Status == st {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memCustomers) Get(_ context.Context, _ session.Identity, customerID string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[customerID]
	if !ok {
		return model.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func (m *memCustomers) admin(id session.Identity, customerID string, req lifecycle.Request) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[customerID]
	if !ok {
		return model.Customer{}, customers.ErrNotFound
	}
	req.Actor = id.Actor()
	return m.apply(cur, req)
}

func (m *memCustomers) Activate(_ context.Context, id session.Identity, customerID, start, end string) (model.Customer, error) {
	return m.admin(id, customerID, lifecycle.Request{Action: lifecycle.ActionActivate, StartDate: start, EndDate: end})
}

func (m *memCustomers) EndService(_ context.Context, id session.Identity, customerID string) (model.Customer, error) {
	return m.admin(id, customerID, lifecycle.Request{Action: lifecycle.ActionEndService})
}

func (m *memCustomers) MarkProcessed(_ context.Context, id session.Identity, customerID string, confirmed bool) (model.Customer, error) {
	if !confirmed {
		return model.Customer{}, customers.ErrConfirmationRequired
	}
	return m.admin(id, customerID, lifecycle.Request{Action: lifecycle.ActionMarkProcessed})
}

func (m *memCustomers) Delete(_ context.Context, id session.Identity, customerID string, confirmed bool) error {
	if !confirmed {
		return customers.ErrConfirmationRequired
	}
	_, err := m.admin(id, customerID, lifecycle.Request{Action: lifecycle.ActionDelete})
	return err
}

func (m *memCustomers) CancelSubscription(_ context.Context, sub string) (customers.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res customers.CancelResult
	if m.failErr != nil {
		return res, m.failErr
	}
	for _, c := range m.rows {
		if c.Subscription() != sub {
			continue
		}
		res.Matched++
		ch, err := lifecycle.Plan(c, lifecycle.Request{Action: lifecycle.ActionCancel, Actor: model.ActorWebhook})
		if err != nil {
			return res, err
		}
		if ch.Noop {
			continue
		}
		m.rows[c.ID] = ch.Apply(c)
		res.Updated++
	}
	return res, nil
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]session.Identity
	next int
}

func newMemSessions() *memSessions { return &memSessions{byID: map[string]session.Identity{}} }

func (s *memSessions) Create(_ context.Context, id session.Identity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	tok := "tok-" + string(rune('a'+s.next))
	s.byID[tok] = id
	return tok, nil
}

func (s *memSessions) Get(_ context.Context, token string) (session.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byID[token]
	if !ok {
		return session.Identity{}, session.ErrNoSession
	}
	return id, nil
}

func (s *memSessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, token)
	return nil
}

type fakeAdmins map[string]bool

func (f fakeAdmins) IsAdmin(_ context.Context, email string) (bool, error) {
	if email == "down@example.com" {
		return false, errors.New("mysql down")
	}
	return f[email], nil
}

func (f fakeAdmins) Add(_ context.Context, email string) error {
	f[email] = true
	return nil
}

type fakeHistory struct {
	rows []model.StatusChange
	err  error
}

func (f *fakeHistory) InsertBatch(_ context.Context, rows []model.StatusChange) error {
	f.rows = append(f.rows, rows...)
	return f.err
}

func (f *fakeHistory) ListByCustomer(_ context.Context, customerID string, limit, offset int) ([]model.StatusChange, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.StatusChange{}
	for _, r := range f.rows {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func testConfig() config.Config {
	return config.Config{
		Webhook: config.WebhookConfig{Path: "/webhook", SignatureHeader: "X-Webhook-Signature"},
		Session: config.SessionConfig{ProxySecret: "proxy-secret"},
	}
}

func strPtr(s string) *string { return &s }
