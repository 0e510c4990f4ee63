package payment

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownOutcome = errors.New("unknown payment outcome")

// Outcome is the processor's verdict on a transaction.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
	OutcomeExpired  Outcome = "expired"
	OutcomeError    Outcome = "error"
	OutcomePending  Outcome = "pending"
)

// processor state codes as sent in state_pol / transactionState
var outcomeCodes = map[string]Outcome{
	"4":   OutcomeApproved,
	"6":   OutcomeDeclined,
	"5":   OutcomeExpired,
	"104": OutcomeError,
	"7":   OutcomePending,
}

// ParseOutcome accepts a numeric state code or an outcome name.
func ParseOutcome(code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	if o, ok := outcomeCodes[code]; ok {
		return o, nil
	}
	switch o := Outcome(strings.ToLower(code)); o {
	case OutcomeApproved, OutcomeDeclined, OutcomeExpired, OutcomeError, OutcomePending:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, code)
}

// Failed reports whether the outcome ends the transaction without payment.
func (o Outcome) Failed() bool {
	return o == OutcomeDeclined || o == OutcomeExpired || o == OutcomeError
}
