package webhook

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/campaignforge/hookrelay/internal/logging"
)

// SubscriptionConfig is the registration input.
type SubscriptionConfig struct {
	TargetURL     string
	EventTypes    []string
	CustomHeaders map[string]string
	RetryPolicy   *RetryPolicy
}

// SubscriptionUpdate is a partial update; nil fields are left unchanged.
// The secret cannot be updated.
type SubscriptionUpdate struct {
	TargetURL     *string
	EventTypes    []string
	Active        *bool
	CustomHeaders map[string]string
	RetryPolicy   *RetryPolicy
}

// Registry owns the set of webhook subscriptions.
type Registry struct {
	store    SubscriptionStore
	defaults RetryPolicy
	log      *logging.Logger
}

func NewRegistry(store SubscriptionStore, defaults RetryPolicy, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.New("hookrelay-registry")
	}
	return &Registry{store: store, defaults: defaults.normalize(), log: log}
}

// generateSecret returns n bytes of entropy, base64url-encoded.
func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validateConfig(targetURL string, eventTypes []string) error {
	if targetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return fmt.Errorf("invalid target_url: %w", err)
	}
	if len(eventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, t := range eventTypes {
		if !KnownEventType(t) {
			return fmt.Errorf("unknown event type %q", t)
		}
	}
	return nil
}

// Register stores a new active subscription and returns it together with the
// freshly issued secret. The secret is returned exactly once; no read
// operation exposes it afterwards.
func (r *Registry) Register(ctx context.Context, workflowID string, cfg SubscriptionConfig) (Subscription, string, error) {
	if err := validateConfig(cfg.TargetURL, cfg.EventTypes); err != nil {
		return Subscription{}, "", err
	}

	secret, err := generateSecret(32) // 256-bit
	if err != nil {
		return Subscription{}, "", err
	}

	policy := r.defaults
	if cfg.RetryPolicy != nil {
		policy = cfg.RetryPolicy.normalize()
	}

	sub := Subscription{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		TargetURL:     cfg.TargetURL,
		EventTypes:    append([]string(nil), cfg.EventTypes...),
		Active:        true,
		Secret:        secret,
		CustomHeaders: cfg.CustomHeaders,
		RetryPolicy:   policy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, sub); err != nil {
		return Subscription{}, "", err
	}

	r.log.WithContext(ctx).WithWorkflow(workflowID).WithSubscription(sub.ID).
		WithField("target_url", sub.TargetURL).Info("subscription registered")
	return sub, secret, nil
}

// Unregister removes the subscription. Retries already scheduled against a
// snapshot of the removed subscription still run to completion.
func (r *Registry) Unregister(ctx context.Context, id string) (bool, error) {
	removed, err := r.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		r.log.WithContext(ctx).WithSubscription(id).Info("subscription removed")
	}
	return removed, nil
}

// Update merges the partial update into the subscription, preserving the
// original secret. Returns false when the id is unknown.
func (r *Registry) Update(ctx context.Context, id string, upd SubscriptionUpdate) (bool, error) {
	sub, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	if upd.TargetURL != nil {
		sub.TargetURL = *upd.TargetURL
	}
	if upd.EventTypes != nil {
		sub.EventTypes = append([]string(nil), upd.EventTypes...)
	}
	if err := validateConfig(sub.TargetURL, sub.EventTypes); err != nil {
		return false, err
	}
	if upd.Active != nil {
		sub.Active = *upd.Active
	}
	if upd.CustomHeaders != nil {
		sub.CustomHeaders = upd.CustomHeaders
	}
	if upd.RetryPolicy != nil {
		sub.RetryPolicy = upd.RetryPolicy.normalize()
	}

	if err := r.store.Update(ctx, sub); err != nil {
		return false, err
	}
	r.log.WithContext(ctx).WithSubscription(id).Info("subscription updated")
	return true, nil
}

// Get returns the subscription by id.
func (r *Registry) Get(ctx context.Context, id string) (Subscription, bool, error) {
	return r.store.Get(ctx, id)
}

// ListMatching returns all active subscriptions wanting eventType, as an
// unordered set.
func (r *Registry) ListMatching(ctx context.Context, eventType string) ([]Subscription, error) {
	return r.store.ListByEventType(ctx, eventType)
}

// Counts returns total and active subscription counts.
func (r *Registry) Counts(ctx context.Context) (total, active int, err error) {
	subs, err := r.store.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, sub := range subs {
		total++
		if sub.Active {
			active++
		}
	}
	return total, active, nil
}
