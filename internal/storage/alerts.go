package storage

import (
	"context"
	"time"
)

// Alert mirrors the Alert entity (C11).
type Alert struct {
	ID             string
	Level          string
	Body           string
	Tier           string
	CreatedAt      time.Time
	NextEscalateAt *time.Time
	AcknowledgedAt *time.Time
}

// CreateAlert inserts a new open alert.
func (s *Store) CreateAlert(ctx context.Context, a Alert) error {
	var nextEscalate *int64
	if a.NextEscalateAt != nil {
		v := a.NextEscalateAt.UnixMilli()
		nextEscalate = &v
	}
	_, err := s.state.ExecContext(ctx,
		`INSERT INTO alerts (id, level, body, tier, created_at, next_escalate_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Level, a.Body, a.Tier, a.CreatedAt.UnixMilli(), nextEscalate,
	)
	return err
}

// EscalateAlert bumps an alert's tier and next escalation time.
func (s *Store) EscalateAlert(ctx context.Context, id, tier string, nextEscalateAt time.Time) error {
	_, err := s.state.ExecContext(ctx,
		`UPDATE alerts SET tier = ?, next_escalate_at = ? WHERE id = ?`, tier, nextEscalateAt.UnixMilli(), id,
	)
	return err
}

// AcknowledgeAlert stamps an alert as acknowledged, ending escalation.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	_, err := s.state.ExecContext(ctx,
		`UPDATE alerts SET acknowledged_at = ? WHERE id = ?`, time.Now().UnixMilli(), id,
	)
	return err
}

// OpenAlerts returns alerts that have not yet been acknowledged.
func (s *Store) OpenAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.state.QueryContext(ctx,
		`SELECT id, level, body, tier, created_at, next_escalate_at, acknowledged_at
		 FROM alerts WHERE acknowledged_at IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var createdAt int64
		var nextEscalate, acknowledged *int64
		if err := rows.Scan(&a.ID, &a.Level, &a.Body, &a.Tier, &createdAt, &nextEscalate, &acknowledged); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(createdAt)
		if nextEscalate != nil {
			ts := time.UnixMilli(*nextEscalate)
			a.NextEscalateAt = &ts
		}
		if acknowledged != nil {
			ts := time.UnixMilli(*acknowledged)
			a.AcknowledgedAt = &ts
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
