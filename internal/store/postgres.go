// Package store provides storage backends for PromptPipe Agent.
//
// This file implements the PostgreSQL-backed store for production
// deployments sharing a database with the delivery system.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on top of a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversationState retrieves the routing state for a participant.
func (s *PostgresStore) GetConversationState(ctx context.Context, participantID string) (models.ConversationState, bool, error) {
	var label string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM flow_states WHERE participant_id = $1 AND flow_type = $2`,
		participantID, models.FlowTypeConversation).Scan(&label)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversationState not found", "participantID", participantID)
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "participantID", participantID)
		return "", false, fmt.Errorf("failed to query conversation state for %s: %w", participantID, err)
	}
	state, err := models.ParseConversationState(label)
	if err != nil {
		slog.Error("PostgresStore GetConversationState unrecognized label", "label", label, "participantID", participantID)
		return "", false, fmt.Errorf("%w: state label %q: %v", ErrCorruptRecord, label, err)
	}
	slog.Debug("PostgresStore GetConversationState found", "participantID", participantID, "state", state)
	return state, true, nil
}

// SetConversationState upserts the routing state for a participant.
func (s *PostgresStore) SetConversationState(ctx context.Context, participantID string, state models.ConversationState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_states (participant_id, flow_type, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id, flow_type) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		participantID, models.FlowTypeConversation, string(state), time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore SetConversationState failed", "error", err, "participantID", participantID, "state", state)
		return fmt.Errorf("failed to set conversation state for %s: %w", participantID, err)
	}
	slog.Debug("PostgresStore SetConversationState succeeded", "participantID", participantID, "state", state)
	return nil
}

// AddMessage appends a message to the participant's history.
func (s *PostgresStore) AddMessage(ctx context.Context, participantID string, role models.MessageRole, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (participant_id, role, content, timestamp) VALUES ($1, $2, $3, $4)`,
		participantID, string(role), content, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "participantID", participantID, "role", role)
		return fmt.Errorf("failed to append message for %s: %w", participantID, err)
	}
	slog.Debug("PostgresStore AddMessage succeeded", "participantID", participantID, "role", role)
	return nil
}

// GetConversationHistory returns the full history in timestamp order, ties
// broken by insertion order.
func (s *PostgresStore) GetConversationHistory(ctx context.Context, participantID string) (models.ConversationHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM conversation_history
		WHERE participant_id = $1
		ORDER BY timestamp ASC, id ASC`, participantID)
	if err != nil {
		slog.Error("PostgresStore GetConversationHistory query failed", "error", err, "participantID", participantID)
		return models.ConversationHistory{}, fmt.Errorf("failed to query history for %s: %w", participantID, err)
	}
	defer rows.Close()

	var history models.ConversationHistory
	for rows.Next() {
		var msg models.ConversationMessage
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			slog.Error("PostgresStore GetConversationHistory scan failed", "error", err, "participantID", participantID)
			return models.ConversationHistory{}, fmt.Errorf("failed to scan history row: %w", err)
		}
		msg.Role = models.MessageRole(role)
		history.Messages = append(history.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetConversationHistory rows iteration failed", "error", err, "participantID", participantID)
		return models.ConversationHistory{}, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	slog.Debug("PostgresStore GetConversationHistory succeeded", "participantID", participantID, "count", len(history.Messages))
	return history, nil
}

// GetUserProfile retrieves the profile for a participant, or nil if absent.
func (s *PostgresStore) GetUserProfile(ctx context.Context, participantID string) (*models.UserProfile, error) {
	var profileJSON string
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_data, created_at, updated_at FROM user_profiles WHERE participant_id = $1`,
		participantID).Scan(&profileJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserProfile not found", "participantID", participantID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserProfile failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query profile for %s: %w", participantID, err)
	}
	profile, err := decodeProfile(participantID, profileJSON, createdAt, updatedAt)
	if err != nil {
		slog.Error("PostgresStore GetUserProfile decode failed", "error", err, "participantID", participantID)
		return nil, err
	}
	slog.Debug("PostgresStore GetUserProfile found", "participantID", participantID)
	return profile, nil
}

// MergeUserProfile applies a field-level merge to the stored profile.
func (s *PostgresStore) MergeUserProfile(ctx context.Context, participantID string, patch models.ProfilePatch) error {
	profile, err := s.GetUserProfile(ctx, participantID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if profile == nil {
		profile = &models.UserProfile{ParticipantID: participantID, CreatedAt: now}
	}
	patch.ApplyTo(profile)
	profile.UpdatedAt = now

	profileJSON, err := encodeProfile(profile)
	if err != nil {
		slog.Error("PostgresStore MergeUserProfile marshal failed", "error", err, "participantID", participantID)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (participant_id, profile_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id) DO UPDATE SET
			profile_data = EXCLUDED.profile_data,
			updated_at = EXCLUDED.updated_at`,
		participantID, profileJSON, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore MergeUserProfile failed", "error", err, "participantID", participantID)
		return fmt.Errorf("failed to save profile for %s: %w", participantID, err)
	}
	slog.Debug("PostgresStore MergeUserProfile succeeded", "participantID", participantID)
	return nil
}

// GetStateData retrieves an opaque JSON value by key, or nil if absent.
func (s *PostgresStore) GetStateData(ctx context.Context, participantID, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM flow_state_data
		WHERE participant_id = $1 AND flow_type = $2 AND key = $3`,
		participantID, models.FlowTypeConversation, key).Scan(&value)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetStateData not found", "participantID", participantID, "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStateData failed", "error", err, "participantID", participantID, "key", key)
		return nil, fmt.Errorf("failed to query state data %s for %s: %w", key, participantID, err)
	}
	slog.Debug("PostgresStore GetStateData found", "participantID", participantID, "key", key)
	return json.RawMessage(value), nil
}

// SetStateData stores an opaque JSON value by key, last-write-wins.
func (s *PostgresStore) SetStateData(ctx context.Context, participantID, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_state_data (participant_id, flow_type, key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_id, flow_type, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		participantID, models.FlowTypeConversation, key, string(value), time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore SetStateData failed", "error", err, "participantID", participantID, "key", key)
		return fmt.Errorf("failed to set state data %s for %s: %w", key, participantID, err)
	}
	slog.Debug("PostgresStore SetStateData succeeded", "participantID", participantID, "key", key)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
