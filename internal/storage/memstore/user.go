package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/contact"
)

var (
	_ auth.UserRepository   = (*Users)(nil)
	_ auth.OTPRepository    = (*OTPs)(nil)
	_ auth.APIKeyRepository = (*APIKeys)(nil)
	_ contact.Repository    = (*Contacts)(nil)
)

// Users implements auth.UserRepository.
type Users struct {
	s *Store
}

func (r *Users) conflict(u *auth.User) error {
	for _, other := range r.s.users {
		if other.ID == u.ID {
			continue
		}
		if other.Mobile == u.Mobile {
			return auth.ErrMobileTaken
		}
		if u.Email != "" && other.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	return nil
}

func (r *Users) Create(_ context.Context, u *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.conflict(u); err != nil {
		return err
	}
	u.ID = r.s.nextID()
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (r *Users) GetByMobile(_ context.Context, mobile string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Mobile == mobile {
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (r *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if email != "" && u.Email == email {
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (r *Users) Update(_ context.Context, u *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[u.ID]
	if !ok {
		return auth.ErrUserNotFound
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	u.Mobile = stored.Mobile
	u.UpdatedAt = r.s.now()
	r.s.users[u.ID] = *u
	return nil
}

// OTPs implements auth.OTPRepository.
type OTPs struct {
	s *Store
}

func (r *OTPs) Create(_ context.Context, o *auth.OTP) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o.ID = r.s.nextID()
	o.CreatedAt = r.s.now()
	r.s.otps[o.ID] = *o
	return nil
}

func (r *OTPs) Active(_ context.Context, mobile string, purpose auth.Purpose, now time.Time) ([]auth.OTP, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []auth.OTP
	for _, o := range r.s.otps {
		if o.Mobile == mobile && o.Purpose == purpose && !o.IsUsed && o.ExpiresAt.After(now) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b auth.OTP) int { return int(b.ID - a.ID) })
	return out, nil
}

func (r *OTPs) MarkUsed(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.otps[id]
	if !ok || o.IsUsed {
		return false, nil
	}
	o.IsUsed = true
	r.s.otps[id] = o
	return true, nil
}

func (r *OTPs) PurgeExpired(_ context.Context, mobile string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, o := range r.s.otps {
		if o.Mobile == mobile && (o.IsUsed || !o.ExpiresAt.After(now)) {
			delete(r.s.otps, id)
			n++
		}
	}
	return n, nil
}

// APIKeys implements auth.APIKeyRepository.
type APIKeys struct {
	s *Store
}

func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.apiKeys[hash]
	if !ok {
		return nil, auth.ErrInvalidAPIKey
	}
	return &k, nil
}

// Contacts implements contact.Repository.
type Contacts struct {
	s *Store
}

func (r *Contacts) CreateMessage(_ context.Context, m *contact.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.nextID()
	m.CreatedAt = r.s.now()
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r *Contacts) Subscribe(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscribers[email]; ok {
		return contact.ErrAlreadySubscribed
	}
	r.s.subscribers[email] = r.s.now()
	return nil
}
