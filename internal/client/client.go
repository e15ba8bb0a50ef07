// Package client calls the cablesync HTTP API on behalf of an operator or a
// signed-in customer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/cablesync/internal/breaker"
	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/model"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Transient reports whether the failure is a store/server problem rather than
// a rejected request.
func (e *APIError) Transient() bool { return e.Status >= 500 }

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	br      *breaker.Breaker
}

func New(baseURL, token string, timeout time.Duration, br *breaker.Breaker) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if br == nil {
		br = breaker.New(3, 15*time.Second)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		br:      br,
	}
}

func FromConfig(c config.ClientConfig) *Client {
	return New(c.BaseURL, c.Token, time.Duration(c.TimeoutMs)*time.Millisecond,
		breaker.FromMillis(c.Breaker.FailThreshold, c.Breaker.OpenForMs))
}

// Row is one entry of the admin list.
type Row struct {
	model.Customer
	DisplayStatus string       `json:"displayStatus"`
	Bucket        model.Bucket `json:"bucket"`
	Notification  string       `json:"notification,omitempty"`
}

// Me is the self-service view of the caller's record.
type Me struct {
	Customer      model.Customer `json:"customer"`
	Stored        bool           `json:"stored"`
	DisplayStatus string         `json:"displayStatus"`
	Bucket        model.Bucket   `json:"bucket"`
	CanCheckout   bool           `json:"canCheckout"`
	Subscribed    bool           `json:"subscribed"`
}

type CheckoutRequest struct {
	SubscriptionID string        `json:"subscriptionID"`
	FirstName      string        `json:"firstName,omitempty"`
	LastName       string        `json:"lastName,omitempty"`
	Phone          string        `json:"phone"`
	Devices        model.Devices `json:"devices"`
}

func (c *Client) ListCustomers(ctx context.Context, status model.Status, orderBy string) ([]Row, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status.String())
	}
	if orderBy != "" {
		q.Set("order_by", orderBy)
	}
	var out struct {
		Results []Row `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/admin/customers", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) Activate(ctx context.Context, id, start, end string) (Row, error) {
	var out Row
	body := map[string]string{"startDate": start, "endDate": end}
	err := c.do(ctx, http.MethodPost, "/v1/admin/customers/"+url.PathEscape(id)+"/activate", nil, body, &out)
	return out, err
}

func (c *Client) EndService(ctx context.Context, id string) (Row, error) {
	var out Row
	err := c.do(ctx, http.MethodPost, "/v1/admin/customers/"+url.PathEscape(id)+"/end-service", nil, nil, &out)
	return out, err
}

func (c *Client) ProcessCancellation(ctx context.Context, id string) (Row, error) {
	var out Row
	q := url.Values{"confirm": {"true"}}
	err := c.do(ctx, http.MethodPost, "/v1/admin/customers/"+url.PathEscape(id)+"/process-cancellation", q, nil, &out)
	return out, err
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	q := url.Values{"confirm": {"true"}}
	return c.do(ctx, http.MethodDelete, "/v1/admin/customers/"+url.PathEscape(id), q, nil, nil)
}

func (c *Client) History(ctx context.Context, id string, limit int) ([]model.StatusChange, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Results []model.StatusChange `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/admin/customers/"+url.PathEscape(id)+"/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var out Me
	err := c.do(ctx, http.MethodGet, "/v1/me", nil, nil, &out)
	return out, err
}

func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (Me, error) {
	var out Me
	err := c.do(ctx, http.MethodPost, "/v1/me/checkout", nil, req, &out)
	return out, err
}

// do runs one request under the breaker. Only transport failures and 5xx
// answers count against it.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	if !c.br.TryAcquire() {
		return breaker.ErrOpen
	}

	status, err := c.roundTrip(ctx, method, path, q, in, out)
	if err != nil && (status == 0 || status >= 500) {
		c.br.OnFailure()
		return err
	}
	c.br.OnSuccess()
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, q url.Values, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&e)
		return res.StatusCode, &APIError{Status: res.StatusCode, Message: e.Error}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return res.StatusCode, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return res.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return res.StatusCode, nil
}
