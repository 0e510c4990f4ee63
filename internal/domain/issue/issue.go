package issue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a situation that needs a human to reconcile it.
type Kind string

const (
	KindCompensationFailed Kind = "compensation_failed"
	KindReleaseFailed      Kind = "release_failed"
	KindLateApproval       Kind = "late_approval"
	KindAmountMismatch     Kind = "amount_mismatch"
)

type Issue struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"order_id,omitempty"`
	Kind      Kind           `json:"kind"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder persists issues for manual reconciliation.
type Recorder interface {
	RecordIssue(ctx context.Context, i Issue) error
}

// Lister returns unresolved issues, oldest first.
type Lister interface {
	ListOpenIssues(ctx context.Context, limit int) ([]Issue, error)
}

// Record stores i and falls back to an error log line carrying every field
// when the recorder itself fails, so the issue is never silently dropped.
func Record(ctx context.Context, rec Recorder, logger *slog.Logger, i Issue) {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	logger.Warn("reconciliation issue",
		"issue_id", i.ID, "order_id", i.OrderID, "kind", i.Kind, "detail", i.Detail)

	if rec == nil {
		return
	}
	if err := rec.RecordIssue(ctx, i); err != nil {
		logger.Error("failed to record reconciliation issue",
			"issue_id", i.ID, "order_id", i.OrderID, "kind", i.Kind, "detail", i.Detail, "error", err)
	}
}
