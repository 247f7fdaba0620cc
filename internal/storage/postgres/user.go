package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ auth.OTPRepository  = (*OTPRepository)(nil)
)

const userColumns = `id, mobile, COALESCE(email, ''), name, address_line1, address_line2,
	city, state, pincode, is_verified, created_at, updated_at`

// UserRepository implements auth.UserRepository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// nullable maps the empty string to SQL NULL so optional unique columns
// do not collide.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func userConflict(err error) error {
	name, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	if strings.Contains(name, "email") {
		return auth.ErrEmailTaken
	}
	return auth.ErrMobileTaken
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO users (
			mobile, email, name, address_line1, address_line2, city, state, pincode, is_verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		u.Mobile, nullable(u.Email), u.Name, u.AddressLine1, u.AddressLine2,
		u.City, u.State, u.Pincode, u.IsVerified,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if cerr := userConflict(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (*auth.User, error) {
	var u auth.User
	err := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg).Scan(
		&u.ID, &u.Mobile, &u.Email, &u.Name, &u.AddressLine1, &u.AddressLine2,
		&u.City, &u.State, &u.Pincode, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	return r.get(ctx, "id = $1", id)
}

// GetByMobile returns a user by mobile number.
func (r *UserRepository) GetByMobile(ctx context.Context, mobile string) (*auth.User, error) {
	return r.get(ctx, "mobile = $1", mobile)
}

// GetByEmail returns a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.get(ctx, "email = $1", email)
}

// Update writes the editable profile fields.
func (r *UserRepository) Update(ctx context.Context, u *auth.User) error {
	err := r.pool.QueryRow(ctx, `UPDATE users SET
			email = $2, name = $3, address_line1 = $4, address_line2 = $5,
			city = $6, state = $7, pincode = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, nullable(u.Email), u.Name, u.AddressLine1, u.AddressLine2, u.City, u.State, u.Pincode,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrUserNotFound
		}
		if cerr := userConflict(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("updating user %d: %w", u.ID, err)
	}
	return nil
}

// OTPRepository implements auth.OTPRepository backed by PostgreSQL.
type OTPRepository struct {
	pool *pgxpool.Pool
}

// NewOTPRepository returns an OTPRepository that uses the given pool.
func NewOTPRepository(pool *pgxpool.Pool) *OTPRepository {
	return &OTPRepository{pool: pool}
}

// Create stores a hashed OTP.
func (r *OTPRepository) Create(ctx context.Context, o *auth.OTP) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO otp_verifications (mobile, otp_hash, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		o.Mobile, o.Hash, string(o.Purpose), o.ExpiresAt,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting otp: %w", err)
	}
	return nil
}

// Active returns unused, unexpired OTPs, newest first.
func (r *OTPRepository) Active(ctx context.Context, mobile string, purpose auth.Purpose, now time.Time) ([]auth.OTP, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, mobile, otp_hash, purpose, expires_at, is_used, created_at
		FROM otp_verifications
		WHERE mobile = $1 AND purpose = $2 AND NOT is_used AND expires_at > $3
		ORDER BY created_at DESC, id DESC`, mobile, string(purpose), now)
	if err != nil {
		return nil, fmt.Errorf("listing otps: %w", err)
	}
	defer rows.Close()

	var out []auth.OTP
	for rows.Next() {
		var o auth.OTP
		if err := rows.Scan(&o.ID, &o.Mobile, &o.Hash, &o.Purpose, &o.ExpiresAt, &o.IsUsed, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning otp: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkUsed consumes an OTP. Only one concurrent caller can win.
func (r *OTPRepository) MarkUsed(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE otp_verifications SET is_used = TRUE WHERE id = $1 AND NOT is_used`, id)
	if err != nil {
		return false, fmt.Errorf("marking otp %d used: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeExpired deletes used or expired OTPs for mobile.
func (r *OTPRepository) PurgeExpired(ctx context.Context, mobile string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM otp_verifications WHERE mobile = $1 AND (is_used OR expires_at <= $2)`, mobile, now)
	if err != nil {
		return 0, fmt.Errorf("purging otps: %w", err)
	}
	return tag.RowsAffected(), nil
}
