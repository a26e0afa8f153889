// Package store provides storage backends for PromptPipe Agent.
//
// This file implements the SQLite-backed store. The database file is shared
// with the delivery system, which owns other flow types in the same tables.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options.
// The DSN is a file path to the SQLite database file; the parent directory
// is created if it doesn't exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversationState retrieves the routing state for a participant.
func (s *SQLiteStore) GetConversationState(ctx context.Context, participantID string) (models.ConversationState, bool, error) {
	var label string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM flow_states WHERE participant_id = ? AND flow_type = ?`,
		participantID, models.FlowTypeConversation).Scan(&label)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversationState not found", "participantID", participantID)
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "participantID", participantID)
		return "", false, fmt.Errorf("failed to query conversation state for %s: %w", participantID, err)
	}
	state, err := models.ParseConversationState(label)
	if err != nil {
		slog.Error("SQLiteStore GetConversationState unrecognized label", "label", label, "participantID", participantID)
		return "", false, fmt.Errorf("%w: state label %q: %v", ErrCorruptRecord, label, err)
	}
	slog.Debug("SQLiteStore GetConversationState found", "participantID", participantID, "state", state)
	return state, true, nil
}

// SetConversationState upserts the routing state for a participant.
func (s *SQLiteStore) SetConversationState(ctx context.Context, participantID string, state models.ConversationState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_states (participant_id, flow_type, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id, flow_type) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`,
		participantID, models.FlowTypeConversation, string(state), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetConversationState failed", "error", err, "participantID", participantID, "state", state)
		return fmt.Errorf("failed to set conversation state for %s: %w", participantID, err)
	}
	slog.Debug("SQLiteStore SetConversationState succeeded", "participantID", participantID, "state", state)
	return nil
}

// AddMessage appends a message to the participant's history.
func (s *SQLiteStore) AddMessage(ctx context.Context, participantID string, role models.MessageRole, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (participant_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		participantID, string(role), content, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "participantID", participantID, "role", role)
		return fmt.Errorf("failed to append message for %s: %w", participantID, err)
	}
	slog.Debug("SQLiteStore AddMessage succeeded", "participantID", participantID, "role", role)
	return nil
}

// GetConversationHistory returns the full history in timestamp order, ties
// broken by insertion order.
func (s *SQLiteStore) GetConversationHistory(ctx context.Context, participantID string) (models.ConversationHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM conversation_history
		WHERE participant_id = ?
		ORDER BY timestamp ASC, id ASC`, participantID)
	if err != nil {
		slog.Error("SQLiteStore GetConversationHistory query failed", "error", err, "participantID", participantID)
		return models.ConversationHistory{}, fmt.Errorf("failed to query history for %s: %w", participantID, err)
	}
	defer rows.Close()

	var history models.ConversationHistory
	for rows.Next() {
		var msg models.ConversationMessage
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			slog.Error("SQLiteStore GetConversationHistory scan failed", "error", err, "participantID", participantID)
			return models.ConversationHistory{}, fmt.Errorf("failed to scan history row: %w", err)
		}
		msg.Role = models.MessageRole(role)
		history.Messages = append(history.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetConversationHistory rows iteration failed", "error", err, "participantID", participantID)
		return models.ConversationHistory{}, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	slog.Debug("SQLiteStore GetConversationHistory succeeded", "participantID", participantID, "count", len(history.Messages))
	return history, nil
}

// GetUserProfile retrieves the profile for a participant, or nil if absent.
func (s *SQLiteStore) GetUserProfile(ctx context.Context, participantID string) (*models.UserProfile, error) {
	var profileJSON string
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_data, created_at, updated_at FROM user_profiles WHERE participant_id = ?`,
		participantID).Scan(&profileJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserProfile not found", "participantID", participantID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserProfile failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query profile for %s: %w", participantID, err)
	}
	profile, err := decodeProfile(participantID, profileJSON, createdAt, updatedAt)
	if err != nil {
		slog.Error("SQLiteStore GetUserProfile decode failed", "error", err, "participantID", participantID)
		return nil, err
	}
	slog.Debug("SQLiteStore GetUserProfile found", "participantID", participantID)
	return profile, nil
}

// MergeUserProfile applies a field-level merge to the stored profile.
func (s *SQLiteStore) MergeUserProfile(ctx context.Context, participantID string, patch models.ProfilePatch) error {
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
		slog.Error("SQLiteStore MergeUserProfile marshal failed", "error", err, "participantID", participantID)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (participant_id, profile_data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			profile_data = excluded.profile_data,
			updated_at = excluded.updated_at`,
		participantID, profileJSON, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore MergeUserProfile failed", "error", err, "participantID", participantID)
		return fmt.Errorf("failed to save profile for %s: %w", participantID, err)
	}
	slog.Debug("SQLiteStore MergeUserProfile succeeded", "participantID", participantID)
	return nil
}

// GetStateData retrieves an opaque JSON value by key, or nil if absent.
func (s *SQLiteStore) GetStateData(ctx context.Context, participantID, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM flow_state_data
		WHERE participant_id = ? AND flow_type = ? AND key = ?`,
		participantID, models.FlowTypeConversation, key).Scan(&value)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetStateData not found", "participantID", participantID, "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStateData failed", "error", err, "participantID", participantID, "key", key)
		return nil, fmt.Errorf("failed to query state data %s for %s: %w", key, participantID, err)
	}
	slog.Debug("SQLiteStore GetStateData found", "participantID", participantID, "key", key)
	return json.RawMessage(value), nil
}

// SetStateData stores an opaque JSON value by key, last-write-wins.
func (s *SQLiteStore) SetStateData(ctx context.Context, participantID, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_state_data (participant_id, flow_type, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, flow_type, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		participantID, models.FlowTypeConversation, key, string(value), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetStateData failed", "error", err, "participantID", participantID, "key", key)
		return fmt.Errorf("failed to set state data %s for %s: %w", key, participantID, err)
	}
	slog.Debug("SQLiteStore SetStateData succeeded", "participantID", participantID, "key", key)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
