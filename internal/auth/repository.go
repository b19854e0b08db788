package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Repository is the production AccountStore over Postgres. Failure history
// is stored as a JSONB array of epoch milliseconds on the users row, so the
// lockout write is a partial update of two columns. Concurrent login
// attempts may race on that update; the last write wins.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	var (
		account      Account
		failedLogons []byte
		lockedUntil  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, auth_role, state_id, failed_logons, locked_until
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, username).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.Role, &account.StateID, &failedLogons, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}

	account.FailedLogons, err = decodeFailedLogons(failedLogons)
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		account.LockedUntil = &value
	}

	return &account, nil
}

func (r *Repository) SaveLoginState(ctx context.Context, accountID int64, failedLogons []time.Time, lockedUntil *time.Time) error {
	encoded, err := encodeFailedLogons(failedLogons)
	if err != nil {
		return err
	}

	var lockedValue any
	if lockedUntil != nil {
		lockedValue = lockedUntil.UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_logons = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, accountID, encoded, lockedValue, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save login state: %w", err)
	}

	return nil
}

func (r *Repository) ActivitiesForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.name
		FROM auth_activities a
		JOIN auth_role_activities ra ON ra.activity_id = a.id
		JOIN auth_roles r ON r.id = ra.role_id
		WHERE r.name = $1
		ORDER BY a.id
	`, role)
	if err != nil {
		return nil, fmt.Errorf("query role activities: %w", err)
	}
	defer rows.Close()

	activities := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return activities, nil
}

// GetUserByID loads the normalized user for session deserialization.
// Returns (nil, nil) when the user no longer exists.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, auth_role, state_id
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.Role, &user.State)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}

	user.Activities, err = r.ActivitiesForRole(ctx, user.Role)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// CleanupStaleLoginState clears expired locks and failure histories that
// have gone quiet, in bounded batches.
func (r *Repository) CleanupStaleLoginState(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE (locked_until IS NOT NULL AND locked_until < NOW())
			   OR (failed_logons IS NOT NULL AND updated_at < $1)
			ORDER BY updated_at ASC
			LIMIT $2
		)
		UPDATE users u
		SET failed_logons = NULL, locked_until = NULL
		FROM stale
		WHERE u.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear stale login state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login state rows affected: %w", err)
	}

	return affected, nil
}

// UpsertAccount creates or updates the account for the given email with a
// freshly hashed password. Used by the env-driven admin bootstrap.
func (r *Repository) UpsertAccount(ctx context.Context, email, plainPassword, role, stateID string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, auth_role, state_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			auth_role = EXCLUDED.auth_role,
			state_id = EXCLUDED.state_id,
			updated_at = EXCLUDED.updated_at
	`, email, string(hash), role, stateID, now)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}

	return nil
}

func decodeFailedLogons(raw []byte) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var millis []int64
	if err := json.Unmarshal(raw, &millis); err != nil {
		return nil, fmt.Errorf("decode failed logons: %w", err)
	}

	logons := make([]time.Time, 0, len(millis))
	for _, ms := range millis {
		logons = append(logons, time.UnixMilli(ms).UTC())
	}

	return logons, nil
}

func encodeFailedLogons(logons []time.Time) (any, error) {
	if len(logons) == 0 {
		return nil, nil
	}

	millis := make([]int64, 0, len(logons))
	for _, logon := range logons {
		millis = append(millis, logon.UnixMilli())
	}

	encoded, err := json.Marshal(millis)
	if err != nil {
		return nil, fmt.Errorf("encode failed logons: %w", err)
	}

	// A string parameter lets Postgres infer jsonb; []byte would bind as bytea.
	return string(encoded), nil
}
