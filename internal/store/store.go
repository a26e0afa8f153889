// Package store provides storage backends for PromptPipe Agent.
//
// It persists four relations per participant: the conversation routing state,
// the append-only message history, the personalization profile, and arbitrary
// per-key state data. The database is shared with the external delivery
// system, so reads must tolerate rows this service did not create.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
)

// ErrCorruptRecord indicates a stored value could not be decoded to its
// expected shape (unrecognized state label, malformed profile JSON).
// Reads never substitute a default for a corrupt row.
var ErrCorruptRecord = errors.New("corrupt stored record")

// Store defines the persistence contract for conversation state, history,
// profiles, and state data. All writes are immediately durable: a handler
// that requests a transition mid-turn must observe the new value on the
// router's next read.
type Store interface {
	// GetConversationState retrieves the routing state for a participant.
	// The bool reports presence; absent is a valid, distinguishable result.
	GetConversationState(ctx context.Context, participantID string) (models.ConversationState, bool, error)

	// SetConversationState upserts the routing state for a participant.
	SetConversationState(ctx context.Context, participantID string, state models.ConversationState) error

	// AddMessage appends a message to the participant's history. The
	// timestamp is assigned at write time by the store.
	AddMessage(ctx context.Context, participantID string, role models.MessageRole, content string) error

	// GetConversationHistory returns the full history in timestamp order,
	// ties broken by insertion order. Callers apply their own bounding.
	GetConversationHistory(ctx context.Context, participantID string) (models.ConversationHistory, error)

	// GetUserProfile retrieves the profile for a participant, or nil if absent.
	GetUserProfile(ctx context.Context, participantID string) (*models.UserProfile, error)

	// MergeUserProfile applies a field-level merge: provided fields
	// overwrite, omitted fields retain their prior values. CreatedAt is set
	// only on first write; UpdatedAt is always refreshed.
	MergeUserProfile(ctx context.Context, participantID string, patch models.ProfilePatch) error

	// GetStateData retrieves an opaque JSON value by key, or nil if absent.
	GetStateData(ctx context.Context, participantID, key string) (json.RawMessage, error)

	// SetStateData stores an opaque JSON value by key, last-write-wins.
	SetStateData(ctx context.Context, participantID, key string, value json.RawMessage) error

	// Close releases the underlying database resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database DSN (a file path for SQLite, a connection
// string for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// InMemoryStore is a mutex-guarded in-memory Store for tests and
// ephemeral runs.
type InMemoryStore struct {
	mu        sync.Mutex
	states    map[string]models.ConversationState
	histories map[string][]models.ConversationMessage
	profiles  map[string]*models.UserProfile
	stateData map[string]map[string]json.RawMessage
	lastStamp map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:    make(map[string]models.ConversationState),
		histories: make(map[string][]models.ConversationMessage),
		profiles:  make(map[string]*models.UserProfile),
		stateData: make(map[string]map[string]json.RawMessage),
		lastStamp: make(map[string]time.Time),
	}
}

// GetConversationState retrieves the routing state for a participant.
func (s *InMemoryStore) GetConversationState(ctx context.Context, participantID string) (models.ConversationState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[participantID]
	if !ok {
		return "", false, nil
	}
	return state, true, nil
}

// SetConversationState upserts the routing state for a participant.
func (s *InMemoryStore) SetConversationState(ctx context.Context, participantID string, state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[participantID] = state
	return nil
}

// AddMessage appends a message with a per-participant non-decreasing timestamp.
func (s *InMemoryStore) AddMessage(ctx context.Context, participantID string, role models.MessageRole, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if last, ok := s.lastStamp[participantID]; ok && now.Before(last) {
		now = last
	}
	s.lastStamp[participantID] = now
	s.histories[participantID] = append(s.histories[participantID], models.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	return nil
}

// GetConversationHistory returns the full history for a participant.
func (s *InMemoryStore) GetConversationHistory(ctx context.Context, participantID string) (models.ConversationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.histories[participantID]
	out := make([]models.ConversationMessage, len(msgs))
	copy(out, msgs)
	// Appends arrive in insertion order; a stable sort keeps ties ordered.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return models.ConversationHistory{Messages: out}, nil
}

// GetUserProfile retrieves the profile for a participant, or nil if absent.
func (s *InMemoryStore) GetUserProfile(ctx context.Context, participantID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[participantID]
	if !ok {
		return nil, nil
	}
	cp := *profile
	return &cp, nil
}

// MergeUserProfile applies a field-level merge to the stored profile.
func (s *InMemoryStore) MergeUserProfile(ctx context.Context, participantID string, patch models.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	profile, ok := s.profiles[participantID]
	if !ok {
		profile = &models.UserProfile{ParticipantID: participantID, CreatedAt: now}
		s.profiles[participantID] = profile
	}
	patch.ApplyTo(profile)
	profile.UpdatedAt = now
	return nil
}

// GetStateData retrieves an opaque JSON value by key, or nil if absent.
func (s *InMemoryStore) GetStateData(ctx context.Context, participantID, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.stateData[participantID]
	if !ok {
		return nil, nil
	}
	value, ok := values[key]
	if !ok {
		return nil, nil
	}
	out := make(json.RawMessage, len(value))
	copy(out, value)
	return out, nil
}

// SetStateData stores an opaque JSON value by key, last-write-wins.
func (s *InMemoryStore) SetStateData(ctx context.Context, participantID, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.stateData[participantID]
	if !ok {
		values = make(map[string]json.RawMessage)
		s.stateData[participantID] = values
	}
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	values[key] = stored
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
