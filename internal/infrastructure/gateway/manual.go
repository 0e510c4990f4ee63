package gateway

import (
	"context"
	"net/url"

	"github.com/example/ec-checkout/internal/domain/payment"
)

// Manual handles methods settled outside the processor, such as bank
// transfer or cash. It only sends the buyer to the shop's return page.
type Manual struct {
	returnURL string
}

func NewManual(returnURL string) *Manual {
	return &Manual{returnURL: returnURL}
}

func (m *Manual) HandOff(ctx context.Context, req payment.HandOffRequest) (*payment.HandOff, error) {
	u, err := url.Parse(m.returnURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("ref", req.Reference)
	q.Set("method", string(req.Method))
	u.RawQuery = q.Encode()
	return &payment.HandOff{RedirectURL: u.String()}, nil
}
