// Package users handles registration, login and account profiles.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/lucypulova/Elitearn/internal/auth"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Profile struct {
	UserID         int64      `json:"user_id"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone"`
	BillingAddress string     `json:"billing_address"`
	City           string     `json:"city"`
	Country        string     `json:"country"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

type Conf struct {
	pool *pgxpool.Pool
}

func NewConf(pool *pgxpool.Pool) (*Conf, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &Conf{pool: pool}, nil
}

// Register creates an account. Unknown roles fall back to buyer; admin is
// never self-assignable.
func (c *Conf) Register(ctx context.Context, email, password, role string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role != auth.RoleBuyer && role != auth.RoleCreator {
		role = auth.RoleBuyer
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var u User
	err = c.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, role, created_at
	`, email, string(hash), role).Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// Authenticate checks the password against the stored hash. Unknown email and
// wrong password are indistinguishable to the caller.
func (c *Conf) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u User
	var hash string
	err := c.pool.QueryRow(ctx, `
		SELECT id, email, role, password_hash, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Role, &hash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("failed to query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// GetProfile returns the profile, or an empty one when none was saved yet.
func (c *Conf) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	var updatedAt time.Time
	err := c.pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(full_name, ''), COALESCE(phone, ''),
		       COALESCE(billing_address, ''), COALESCE(city, ''), COALESCE(country, ''), updated_at
		FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.FullName, &p.Phone, &p.BillingAddress, &p.City, &p.Country, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{UserID: userID}, nil
		}
		return Profile{}, fmt.Errorf("failed to query profile: %w", err)
	}
	p.UpdatedAt = &updatedAt
	return p, nil
}

// UpsertProfile saves the profile and returns the stored row.
func (c *Conf) UpsertProfile(ctx context.Context, userID int64, in Profile) (Profile, error) {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, full_name, phone, billing_address, city, country)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (user_id) DO UPDATE SET
			full_name       = EXCLUDED.full_name,
			phone           = EXCLUDED.phone,
			billing_address = EXCLUDED.billing_address,
			city            = EXCLUDED.city,
			country         = EXCLUDED.country,
			updated_at      = now()
	`, userID, strings.TrimSpace(in.FullName), strings.TrimSpace(in.Phone),
		strings.TrimSpace(in.BillingAddress), strings.TrimSpace(in.City), strings.TrimSpace(in.Country))
	if err != nil {
		return Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return c.GetProfile(ctx, userID)
}
