package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
)

// SubscriberRepositoryInterface defines methods used by the resolver, the
// dispatcher and the unsubscribe endpoint.
type SubscriberRepositoryInterface interface {
	ListSubscribed(ctx context.Context) ([]string, error)
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
	UnsubscribedAmong(ctx context.Context, emails []string) (map[string]bool, error)
	GetOrCreateUnsubToken(ctx context.Context, email string) (string, error)
	UnsubscribeByToken(ctx context.Context, token string) (string, error)
}

// SubscriberRepository is the concrete implementation
type SubscriberRepository struct {
	DB *sql.DB
}

// ListSubscribed returns every subscribed address.
func (r *SubscriberRepository) ListSubscribed(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT email FROM subscribers WHERE status='subscribed' ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// IsUnsubscribed is false for unknown addresses.
func (r *SubscriberRepository) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM subscribers WHERE email=$1`, email).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return status == "unsubscribed", nil
}

func (r *SubscriberRepository) UnsubscribedAmong(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT email FROM subscribers WHERE status='unsubscribed' AND email = ANY($1)`, pq.Array(emails))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out[e] = true
	}
	return out, rows.Err()
}

// GetOrCreateUnsubToken returns the persisted token, creating the subscriber
// row and token on first use. Concurrent callers converge on the same token.
func (r *SubscriberRepository) GetOrCreateUnsubToken(ctx context.Context, email string) (string, error) {
	query := `
		INSERT INTO subscribers (email, status, unsub_token)
		VALUES ($1, 'subscribed', $2)
		ON CONFLICT (email) DO UPDATE
		SET unsub_token = COALESCE(subscribers.unsub_token, EXCLUDED.unsub_token)
		RETURNING unsub_token
	`
	var token string
	err := r.DB.QueryRowContext(ctx, query, email, uuid.NewString()).Scan(&token)
	return token, err
}

// UnsubscribeByToken flips the owner of token to unsubscribed and returns its email.
func (r *SubscriberRepository) UnsubscribeByToken(ctx context.Context, token string) (string, error) {
	var email string
	err := r.DB.QueryRowContext(ctx,
		`UPDATE subscribers SET status='unsubscribed' WHERE unsub_token=$1 RETURNING email`, token).Scan(&email)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.ErrTokenNotFound
		}
		return "", err
	}
	return email, nil
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
