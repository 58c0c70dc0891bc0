// Package store persists the little state the bot needs between webhook
// deliveries: known LINE users, their Google OAuth tokens, pending event
// confirmations and one-time login codes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

var (
	ErrNoToken       = errors.New("no google token for user")
	ErrCodeInvalid   = errors.New("one-time code is invalid or expired")
	ErrNoPendingSave = errors.New("no pending events for user")
)

// TokenRecord is a stored Google OAuth token. The calendar package converts
// it to and from the oauth2 representation.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables this service owns. Statements are
// idempotent so startup can always run them.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS line_users (
			line_user_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS google_tokens (
			line_user_id TEXT PRIMARY KEY REFERENCES line_users(line_user_id),
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL DEFAULT 'Bearer',
			expiry TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS pending_events (
			line_user_id TEXT PRIMARY KEY REFERENCES line_users(line_user_id),
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS onetime_codes (
			code TEXT PRIMARY KEY,
			line_user_id TEXT NOT NULL REFERENCES line_users(line_user_id),
			expires_at TIMESTAMPTZ NOT NULL,
			used_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// EnsureUser registers a LINE user id on first contact.
func (s *Store) EnsureUser(ctx context.Context, lineUserID string) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO line_users (line_user_id) VALUES ($1)
		 ON CONFLICT (line_user_id) DO NOTHING`,
		lineUserID,
	)
	return err
}

func (s *Store) GoogleToken(ctx context.Context, lineUserID string) (TokenRecord, error) {
	record := TokenRecord{}
	var expiry *time.Time
	err := s.pool.QueryRow(
		ctx,
		`SELECT access_token, refresh_token, token_type, expiry
		 FROM google_tokens WHERE line_user_id = $1`,
		lineUserID,
	).Scan(&record.AccessToken, &record.RefreshToken, &record.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenRecord{}, ErrNoToken
	}
	if err != nil {
		return TokenRecord{}, err
	}
	if expiry != nil {
		record.Expiry = *expiry
	}
	return record, nil
}

func (s *Store) SaveGoogleToken(ctx context.Context, lineUserID string, record TokenRecord) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO google_tokens (line_user_id, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (line_user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN google_tokens.refresh_token ELSE EXCLUDED.refresh_token END,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()`,
		lineUserID,
		record.AccessToken,
		record.RefreshToken,
		record.TokenType,
		record.Expiry,
	)
	return err
}

// Authenticated reports whether the user has a linked Google account.
func (s *Store) Authenticated(ctx context.Context, lineUserID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM google_tokens WHERE line_user_id = $1)`,
		lineUserID,
	).Scan(&exists)
	return exists, err
}

// ListAuthenticatedUsers returns every LINE user with a linked Google
// account, for the daily agenda push.
func (s *Store) ListAuthenticatedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT line_user_id FROM google_tokens ORDER BY line_user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SavePendingEvents replaces the user's pending confirmation payload.
func (s *Store) SavePendingEvents(ctx context.Context, lineUserID string, entries []temporal.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO pending_events (line_user_id, payload, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (line_user_id) DO UPDATE SET payload = EXCLUDED.payload, created_at = NOW()`,
		lineUserID,
		payload,
	)
	return err
}

func (s *Store) PendingEvents(ctx context.Context, lineUserID string) ([]temporal.Entry, error) {
	var payload []byte
	err := s.pool.QueryRow(
		ctx,
		`SELECT payload FROM pending_events WHERE line_user_id = $1`,
		lineUserID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingSave
	}
	if err != nil {
		return nil, err
	}
	var entries []temporal.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) DeletePendingEvents(ctx context.Context, lineUserID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_events WHERE line_user_id = $1`, lineUserID)
	return err
}

// CreateOnetimeCode issues a short-lived login code for linking a Google
// account to a LINE user.
func (s *Store) CreateOnetimeCode(ctx context.Context, lineUserID string, ttl time.Duration) (string, error) {
	code := uuid.NewString()
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO onetime_codes (code, line_user_id, expires_at) VALUES ($1, $2, $3)`,
		code,
		lineUserID,
		time.Now().Add(ttl),
	)
	if err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeOnetimeCode marks a code used and returns its LINE user. A code can
// be consumed once, before its expiry.
func (s *Store) ConsumeOnetimeCode(ctx context.Context, code string) (string, error) {
	var lineUserID string
	err := s.pool.QueryRow(
		ctx,
		`UPDATE onetime_codes
		 SET used_at = NOW()
		 WHERE code = $1 AND used_at IS NULL AND expires_at > NOW()
		 RETURNING line_user_id`,
		code,
	).Scan(&lineUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCodeInvalid
	}
	if err != nil {
		return "", err
	}
	return lineUserID, nil
}
