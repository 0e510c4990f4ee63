package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/issue"
)

func (p *Postgres) RecordIssue(ctx context.Context, i issue.Issue) error {
	detail, err := json.Marshal(i.Detail)
	if err != nil {
		return fmt.Errorf("marshal issue detail: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO reconciliation_issues (id, order_id, kind, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		i.ID, nullString(i.OrderID), i.Kind, detail, i.CreatedAt)
	return err
}

// ListOpenIssues returns unresolved issues, oldest first.
func (p *Postgres) ListOpenIssues(ctx context.Context, limit int) ([]issue.Issue, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, COALESCE(order_id, ''), kind, detail, created_at
		 FROM reconciliation_issues
		 WHERE NOT resolved
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []issue.Issue
	for rows.Next() {
		var i issue.Issue
		var detail []byte
		if err := rows.Scan(&i.ID, &i.OrderID, &i.Kind, &detail, &i.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detail, &i.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal issue %s: %w", i.ID, err)
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}
