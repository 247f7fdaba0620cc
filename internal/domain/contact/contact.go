// Package contact handles contact form messages and newsletter signups.
package contact

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

var (
	ErrAlreadySubscribed = errors.New("email already subscribed")
	ErrInvalidEmail      = errors.New("invalid email address")
)

// Message is a submitted contact form.
type Message struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Subject   string
	Message   string
	CreatedAt time.Time
}

// Repository persists contact messages and newsletter subscribers.
type Repository interface {
	CreateMessage(ctx context.Context, m *Message) error
	// Subscribe stores email, returning ErrAlreadySubscribed for duplicates.
	Subscribe(ctx context.Context, email string) error
}

// Notifier forwards new contact messages to the store.
type Notifier interface {
	ContactReceived(ctx context.Context, m *Message) error
}

// Service implements contact and newsletter operations.
type Service struct {
	repo     Repository
	notifier Notifier
}

// NewService creates a contact Service.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Submit stores a contact message and notifies the store.
func (s *Service) Submit(ctx context.Context, m *Message) error {
	m.Name = strings.TrimSpace(m.Name)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Message = strings.TrimSpace(m.Message)
	m.Phone = strings.TrimSpace(m.Phone)
	email, err := normalizeEmail(m.Email)
	if err != nil {
		return err
	}
	m.Email = email

	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return errors.Wrap(err, "create message")
	}
	if err := s.notifier.ContactReceived(ctx, m); err != nil {
		zctx.From(ctx).Warn("Contact notification failed", zap.Int64("message_id", m.ID), zap.Error(err))
	}
	return nil
}

// Subscribe adds an email to the newsletter list.
func (s *Service) Subscribe(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	return s.repo.Subscribe(ctx, email)
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return s, nil
}
