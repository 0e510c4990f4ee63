package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrMalformedNotification = errors.New("malformed payment notification")

// Notification is a processor confirmation, delivered by webhook or carried
// on the browser return.
type Notification struct {
	MerchantID string `json:"merchant_id"`
	Reference  string `json:"reference_sale"`
	Amount     string `json:"value"`
	Currency   string `json:"currency"`
	Code       string `json:"state_pol"`
	Signature  string `json:"sign"`
}

// Parsed holds the validated fields of a Notification.
type Parsed struct {
	Notification
	Value   decimal.Decimal
	Outcome Outcome
}

// Parse checks that every field is present and well formed. It does not
// verify the signature.
func (n Notification) Parse() (*Parsed, error) {
	if n.MerchantID == "" || n.Reference == "" || n.Amount == "" ||
		n.Currency == "" || n.Code == "" || n.Signature == "" {
		return nil, fmt.Errorf("%w: missing field", ErrMalformedNotification)
	}
	value, err := decimal.NewFromString(n.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedNotification, n.Amount)
	}
	outcome, err := ParseOutcome(n.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return &Parsed{Notification: n, Value: value, Outcome: outcome}, nil
}

// Verify checks the signature over merchant~reference~amount~currency~code.
func (p *Parsed) Verify(s Signer) bool {
	return s.Verify(p.Signature, p.MerchantID, p.Reference, FormatAmount(p.Value), p.Currency, p.Code)
}

// SignNotification fills n.Signature; used by tests and sandbox tooling.
func SignNotification(s Signer, n Notification) (Notification, error) {
	value, err := decimal.NewFromString(n.Amount)
	if err != nil {
		return n, fmt.Errorf("%w: amount %q", ErrMalformedNotification, n.Amount)
	}
	n.Signature = s.Sign(n.MerchantID, n.Reference, FormatAmount(value), n.Currency, n.Code)
	return n, nil
}
