// Package postgres provides the durable SubscriptionStore used when the
// service runs with DB_ENABLED=true. Delivery state (history, dead letters)
// stays in memory; only subscriptions survive restarts.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campaignforge/hookrelay/internal/webhook"
)

const schema = `
CREATE TABLE IF NOT EXISTS webhook_subscriptions (
	id             TEXT PRIMARY KEY,
	workflow_id    TEXT NOT NULL,
	target_url     TEXT NOT NULL,
	event_types    TEXT[] NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	secret         TEXT NOT NULL,
	custom_headers JSONB,
	retry_policy   JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_active
	ON webhook_subscriptions (active);
`

// Connect establishes a connection pool to the database and returns the pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store implements webhook.SubscriptionStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the subscriptions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Insert(ctx context.Context, sub webhook.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions
			(id, workflow_id, target_url, event_types, active, secret, custom_headers, retry_policy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.WorkflowID, sub.TargetURL, sub.EventTypes, sub.Active,
		sub.Secret, sub.CustomHeaders, sub.RetryPolicy, sub.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (webhook.Subscription, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, target_url, event_types, active, secret, custom_headers, retry_policy, created_at
		FROM webhook_subscriptions
		WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return webhook.Subscription{}, false, nil
	}
	if err != nil {
		return webhook.Subscription{}, false, err
	}
	return sub, true, nil
}

func (s *Store) Update(ctx context.Context, sub webhook.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET target_url = $2, event_types = $3, active = $4, custom_headers = $5, retry_policy = $6
		WHERE id = $1`,
		sub.ID, sub.TargetURL, sub.EventTypes, sub.Active, sub.CustomHeaders, sub.RetryPolicy,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]webhook.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, target_url, event_types, active, secret, custom_headers, retry_policy, created_at
		FROM webhook_subscriptions
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *Store) ListByEventType(ctx context.Context, eventType string) ([]webhook.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, target_url, event_types, active, secret, custom_headers, retry_policy, created_at
		FROM webhook_subscriptions
		WHERE active AND $1 = ANY(event_types)`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func scanSubscription(row pgx.Row) (webhook.Subscription, error) {
	var sub webhook.Subscription
	err := row.Scan(
		&sub.ID, &sub.WorkflowID, &sub.TargetURL, &sub.EventTypes, &sub.Active,
		&sub.Secret, &sub.CustomHeaders, &sub.RetryPolicy, &sub.CreatedAt,
	)
	return sub, err
}

func collectSubscriptions(rows pgx.Rows) ([]webhook.Subscription, error) {
	var out []webhook.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
