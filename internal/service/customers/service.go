package customers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/metrics"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmehdipour/cablesync/internal/session"
	"github.com/jmehdipour/cablesync/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	LifecycleKafkaTopic = "customer.lifecycle"
	outboxAggregate     = "customer"
)

var (
	ErrNotFound             = errors.New("customer not found")
	ErrSubscriptionInUse    = errors.New("subscription id belongs to another customer")
	ErrConfirmationRequired = errors.New("operator confirmation required")
)

// Service applies lifecycle transitions. Each one loads the record under a
// row lock, writes the new row and its outbox event in one transaction, and
// only returns the updated record after commit.
type Service struct {
	db        *sqlx.DB
	customers repository.CustomersRepository
	outbox    repository.OutboxRepository

	topic            string
	placeholderEmail string
	defaultOrder     string
	now              func() time.Time
}

type Option func(*Service)

func WithTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithPlaceholderEmail hides the shared test account from admin listings.
func WithPlaceholderEmail(email string) Option {
	return func(s *Service) { s.placeholderEmail = strings.TrimSpace(email) }
}

func WithDefaultOrder(field string) Option {
	return func(s *Service) {
		if _, ok := repository.OrderColumn(field); ok {
			s.defaultOrder = field
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the customer lifecycle service.
func New(
	db *sqlx.DB,
	customersRepo repository.CustomersRepository,
	outboxRepo repository.OutboxRepository,
	opts ...Option,
) *Service {
	s := &Service{
		db:           db,
		customers:    customersRepo,
		outbox:       outboxRepo,
		topic:        LifecycleKafkaTopic,
		defaultOrder: "email",
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Me returns the caller's record, first match by email. When none exists it
// returns an unsaved record in "No service" and stored=false.
func (s *Service) Me(ctx context.Context, id session.Identity) (c model.Customer, stored bool, err error) {
	found, err := s.customers.FindByEmail(ctx, id.Email)
	if err != nil {
		return model.Customer{}, false, fmt.Errorf("find by email: %w", err)
	}
	if found == nil {
		return model.NewTransient(id.Email, id.FirstName, id.LastName), false, nil
	}
	return *found, true, nil
}

// Checkout records a client-reported successful payment checkout: it merges
// the form into the caller's record and moves it to Pending Activation.
func (s *Service) Checkout(ctx context.Context, id session.Identity, subscriptionID string, p lifecycle.Profile) (model.Customer, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return model.Customer{}, lifecycle.ErrMissingSubscription
	}
	if !p.Eligible() {
		return model.Customer{}, lifecycle.ErrIncompleteForm
	}

	customerID := id.CustomerID()
	transient := model.NewTransient(id.Email, id.FirstName, id.LastName)
	req := lifecycle.Request{
		Action:         lifecycle.ActionCheckout,
		Actor:          model.ActorCustomer,
		SubscriptionID: subscriptionID,
		Profile:        p,
	}

	return s.transition(ctx, customerID, req, func(ctx context.Context, tx *sqlx.Tx, cur *model.Customer) (*model.Customer, error) {
		owners, err := s.customers.ListBySubscriptionID(ctx, tx, subscriptionID)
		if err != nil {
			return nil, fmt.Errorf("lookup subscription owner: %w", err)
		}
		for _, o := range owners {
			if o.ID != customerID {
				return nil, ErrSubscriptionInUse
			}
		}
		if cur == nil {
			return &transient, nil
		}
		return cur, nil
	})
}

// List returns customers for the admin view.
func (s *Service) List(ctx context.Context, id session.Identity, status model.Status, orderBy string) ([]model.Customer, error) {
	if !id.Admin {
		return nil, lifecycle.ErrForbidden
	}
	if orderBy == "" {
		orderBy = s.defaultOrder
	}
	rows, err := s.customers.List(ctx, repository.ListFilter{
		Status:       status,
		ExcludeEmail: s.placeholderEmail,
		OrderBy:      orderBy,
	})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return rows, nil
}

// Get returns one record for an admin.
func (s *Service) Get(ctx context.Context, id session.Identity, customerID string) (model.Customer, error) {
	if !id.Admin {
		return model.Customer{}, lifecycle.ErrForbidden
	}
	c, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return model.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	if c == nil {
		return model.Customer{}, ErrNotFound
	}
	return *c, nil
}

// Activate marks the customer Active for the given YYYY-MM-DD window. Both
// dates are checked before the store is touched.
func (s *Service) Activate(ctx context.Context, id session.Identity, customerID, start, end string) (model.Customer, error) {
	if !id.Admin {
		return model.Customer{}, lifecycle.ErrForbidden
	}
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return model.Customer{}, lifecycle.ErrMissingDates
	}
	return s.transition(ctx, customerID, lifecycle.Request{
		Action:    lifecycle.ActionActivate,
		Actor:     model.ActorAdmin,
		StartDate: start,
		EndDate:   end,
	}, nil)
}

// EndService returns an Active customer to No service.
func (s *Service) EndService(ctx context.Context, id session.Identity, customerID string) (model.Customer, error) {
	if !id.Admin {
		return model.Customer{}, lifecycle.ErrForbidden
	}
	return s.transition(ctx, customerID, lifecycle.Request{Action: lifecycle.ActionEndService, Actor: model.ActorAdmin}, nil)
}

// MarkProcessed records that staff handled a cancellation.
func (s *Service) MarkProcessed(ctx context.Context, id session.Identity, customerID string, confirmed bool) (model.Customer, error) {
	if !id.Admin {
		return model.Customer{}, lifecycle.ErrForbidden
	}
	if !confirmed {
		return model.Customer{}, ErrConfirmationRequired
	}
	return s.transition(ctx, customerID, lifecycle.Request{Action: lifecycle.ActionMarkProcessed, Actor: model.ActorAdmin}, nil)
}

// Delete removes the record entirely.
func (s *Service) Delete(ctx context.Context, id session.Identity, customerID string, confirmed bool) error {
	if !id.Admin {
		return lifecycle.ErrForbidden
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	_, err := s.transition(ctx, customerID, lifecycle.Request{Action: lifecycle.ActionDelete, Actor: model.ActorAdmin}, nil)
	return err
}

// CancelResult reports what a cancellation event touched.
type CancelResult struct {
	Matched int
	Updated int
	Skipped int // matches whose stored status cannot be canceled
}

// CancelSubscription moves every record holding subscriptionID to Canceled.
// No match is not an error. Store failures are returned so the caller can
// ask the provider to redeliver.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string) (CancelResult, error) {
	var res CancelResult
	log := logger.Log.With(zap.String("subscription_id", subscriptionID))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	matches, err := s.customers.ListBySubscriptionID(ctx, tx, subscriptionID)
	if err != nil {
		return res, fmt.Errorf("lookup subscription: %w", err)
	}
	res.Matched = len(matches)
	if len(matches) == 0 {
		log.Info("no customer found for cancelled subscription")
		return res, nil
	}
	if len(matches) > 1 {
		log.Warn("subscription id held by several customers; canceling all", zap.Int("matches", len(matches)))
	}

	var applied []lifecycle.Change
	for _, cur := range matches {
		ch, err := lifecycle.Plan(cur, lifecycle.Request{Action: lifecycle.ActionCancel, Actor: model.ActorWebhook})
		if err != nil {
			// a row this service cannot cancel must not block the other matches
			log.Warn("skipping customer on cancellation",
				zap.String("customer_id", cur.ID), zap.String("status", cur.Status.String()), zap.Error(err))
			res.Skipped++
			continue
		}
		if ch.Noop {
			log.Info("cancellation already applied", zap.String("customer_id", cur.ID), zap.String("status", cur.Status.String()))
			continue
		}
		if err := s.write(ctx, tx, cur, ch); err != nil {
			return res, err
		}
		applied = append(applied, ch)
		res.Updated++
	}

	if err := tx.Commit(); err != nil {
		return CancelResult{Matched: res.Matched, Skipped: res.Skipped}, fmt.Errorf("commit: %w", err)
	}
	for _, ch := range applied {
		metrics.TransitionsTotal.WithLabelValues(ch.Action.String(), ch.To.String()).Inc()
	}
	log.Info("subscription cancelled", zap.Int("matched", res.Matched), zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	return res, nil
}

// loadFunc resolves the record a transition starts from; cur is nil when the
// id has no row.
type loadFunc func(ctx context.Context, tx *sqlx.Tx, cur *model.Customer) (*model.Customer, error)

func (s *Service) transition(ctx context.Context, customerID string, req lifecycle.Request, load loadFunc) (model.Customer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Customer{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.customers.GetForUpdate(ctx, tx, customerID)
	if err != nil {
		return model.Customer{}, fmt.Errorf("load customer: %w", err)
	}
	if load != nil {
		if cur, err = load(ctx, tx, cur); err != nil {
			return model.Customer{}, err
		}
	}
	if cur == nil {
		return model.Customer{}, ErrNotFound
	}

	ch, err := lifecycle.Plan(*cur, req)
	if err != nil {
		return model.Customer{}, err
	}
	if ch.Noop {
		return *cur, nil
	}

	if err := s.write(ctx, tx, *cur, ch); err != nil {
		return model.Customer{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Customer{}, fmt.Errorf("commit: %w", err)
	}

	metrics.TransitionsTotal.WithLabelValues(ch.Action.String(), ch.To.String()).Inc()
	logger.Log.Info("customer transition",
		zap.String("customer_id", cur.ID),
		zap.String("action", ch.Action.String()),
		zap.String("actor", ch.Actor.String()),
		zap.String("from", ch.From.String()),
		zap.String("to", ch.To.String()),
	)

	updated := ch.Apply(*cur)
	updated.UpdatedAt = s.now()
	return updated, nil
}

// write persists one change and its outbox event inside tx.
func (s *Service) write(ctx context.Context, tx *sqlx.Tx, cur model.Customer, ch lifecycle.Change) error {
	if ch.Delete {
		ok, err := s.customers.Delete(ctx, tx, cur.ID)
		if err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		if !ok {
			return ErrNotFound
		}
	} else {
		if err := s.customers.Upsert(ctx, tx, ch.Apply(cur)); err != nil {
			if errors.Is(err, repository.ErrDuplicateSubscription) {
				return ErrSubscriptionInUse
			}
			return fmt.Errorf("save customer: %w", err)
		}
	}

	now := s.now()
	ev := ch.Event(cur)
	ev.ID = util.NewID(now)
	ev.At = now.UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, outboxAggregate, cur.ID, s.topic, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
