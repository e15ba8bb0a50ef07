package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmehdipour/cablesync/internal/breaker"
	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/model"
)

// Notification tells staff a customer needs attention.
type Notification struct {
	EventID        string       `json:"event_id"`
	CustomerID     string       `json:"customer_id"`
	Email          string       `json:"email"`
	From           model.Status `json:"from"`
	To             model.Status `json:"to"`
	Actor          model.Actor  `json:"actor"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	Message        string       `json:"message"`
	At             time.Time    `json:"at"`
}

// Wants reports whether an event should reach staff. Only fresh
// cancellations need an operator to process them.
func Wants(ev model.LifecycleEvent) bool {
	return !ev.Deleted && ev.To == model.StatusCanceled && ev.From != model.StatusCanceled
}

func FromEvent(ev model.LifecycleEvent) Notification {
	return Notification{
		EventID:        ev.ID,
		CustomerID:     ev.CustomerID,
		Email:          ev.Email,
		From:           ev.From,
		To:             ev.To,
		Actor:          ev.Actor,
		SubscriptionID: ev.SubscriptionID,
		Message:        "Process cancellation of service.",
		At:             ev.At,
	}
}

type Notifier interface {
	Name() string
	Ready() bool
	Acquire() bool
	Notify(ctx context.Context, n Notification) error
}

// HTTPNotifier posts notifications as JSON to a staff-facing endpoint.
type HTTPNotifier struct {
	name    string
	baseURL string
	path    string
	client  *http.Client
	br      *breaker.Breaker
}

func NewHTTPNotifier(name, baseURL, path string, timeoutMs, failThreshold, openForMs int) *HTTPNotifier {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}
	return &HTTPNotifier{
		name:    name,
		baseURL: baseURL,
		path:    path,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      breaker.FromMillis(failThreshold, openForMs),
	}
}

// FromConfig builds the enabled notifiers.
func FromConfig(cfgs []config.NotifierConfig) []Notifier {
	var out []Notifier
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		out = append(out, NewHTTPNotifier(c.Name, c.BaseURL, c.Path, c.TimeoutMs, c.Breaker.FailThreshold, c.Breaker.OpenForMs))
	}
	return out
}

func (p *HTTPNotifier) Name() string  { return p.name }
func (p *HTTPNotifier) Ready() bool   { return p.br.Ready() }
func (p *HTTPNotifier) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPNotifier) Notify(ctx context.Context, n Notification) error {
	if err := p.post(ctx, n); err != nil {
		p.br.OnFailure()
		return err
	}
	p.br.OnSuccess()
	return nil
}

func (p *HTTPNotifier) post(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.EventID)

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("notifier=%s status=%d", p.name, res.StatusCode)
	}
	return nil
}
