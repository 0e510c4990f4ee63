package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/example/ec-checkout/internal/domain/payment"
)

type Config struct {
	CheckoutURL     string
	MerchantID      string
	AccountID       string
	Signer          payment.Signer
	ResponseURL     string
	ConfirmationURL string
	Test            bool
	Timeout         time.Duration
	Language        string
}

// Client hands buyers off to the processor's web checkout. The signed form
// is posted server side and the processor answers with the page to send the
// buyer to.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	logger = logger.With("component", "payment_gateway")

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "payment-handoff",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// Form builds the signed hand-off fields for req.
func (c *Client) Form(req payment.HandOffRequest) url.Values {
	amount := req.Total.StringFixed(2)
	test := "0"
	if c.cfg.Test {
		test = "1"
	}
	return url.Values{
		"merchantId":      {c.cfg.MerchantID},
		"accountId":       {c.cfg.AccountID},
		"description":     {"Order " + req.OrderID},
		"referenceCode":   {req.Reference},
		"amount":          {amount},
		"tax":             {"0"},
		"taxReturnBase":   {"0"},
		"currency":        {req.Currency},
		"signature":       {c.cfg.Signer.Sign(c.cfg.MerchantID, req.Reference, amount, req.Currency)},
		"test":            {test},
		"buyerEmail":      {req.Buyer.Email},
		"buyerFullName":   {req.Buyer.Name},
		"responseUrl":     {c.cfg.ResponseURL},
		"confirmationUrl": {c.cfg.ConfirmationURL},
		"extra1":          {req.OrderID},
		"lng":             {c.cfg.Language},
	}
}

func (c *Client) HandOff(ctx context.Context, req payment.HandOffRequest) (*payment.HandOff, error) {
	form := c.Form(req)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CheckoutURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("processor returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("hand-off short-circuited", "order_id", req.OrderID, "error", err)
		}
		return nil, fmt.Errorf("hand-off: %w", err)
	}
	defer resp.Body.Close()

	redirect, err := redirectTarget(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("hand-off accepted", "order_id", req.OrderID, "reference", req.Reference)
	return &payment.HandOff{RedirectURL: redirect}, nil
}

// redirectTarget reads the buyer's destination from a redirect Location or
// from a JSON body carrying redirect_url.
func redirectTarget(resp *http.Response) (string, error) {
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return "", fmt.Errorf("%w: redirect without location", payment.ErrHandOffRejected)
		}
		return loc.String(), nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var body struct {
			RedirectURL string `json:"redirect_url"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil || body.RedirectURL == "" {
			return "", fmt.Errorf("%w: no redirect in response", payment.ErrHandOffRejected)
		}
		return body.RedirectURL, nil
	default:
		return "", fmt.Errorf("%w: status %d", payment.ErrHandOffRejected, resp.StatusCode)
	}
}
