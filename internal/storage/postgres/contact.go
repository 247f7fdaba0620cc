package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/contact"
)

var _ contact.Repository = (*ContactRepository)(nil)

// ContactRepository implements contact.Repository backed by PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a ContactRepository that uses the given pool.
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// CreateMessage stores a contact form submission.
func (r *ContactRepository) CreateMessage(ctx context.Context, m *contact.Message) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO contact_messages (name, email, phone, subject, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		m.Name, m.Email, m.Phone, m.Subject, m.Message,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting contact message: %w", err)
	}
	return nil
}

// Subscribe adds a newsletter subscriber.
func (r *ContactRepository) Subscribe(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO newsletter_subscribers (email) VALUES ($1)`, email)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return contact.ErrAlreadySubscribed
		}
		return fmt.Errorf("inserting subscriber: %w", err)
	}
	return nil
}
