package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
)

// profileFields is the stored shape of the profile blob. Timestamps live in
// dedicated columns; unknown fields written by the external system are
// dropped on decode and preserved by never rewriting rows we don't own.
type profileFields struct {
	HabitDomain          string `json:"habit_domain,omitempty"`
	PromptAnchor         string `json:"prompt_anchor,omitempty"`
	MotivationalFrame    string `json:"motivational_frame,omitempty"`
	PreferredTime        string `json:"preferred_time,omitempty"`
	OtherPersonalization string `json:"other_personalization,omitempty"`
}

// decodeProfile parses the stored profile blob. Malformed JSON is a corrupt
// record; the caller must not substitute a default.
func decodeProfile(participantID, profileJSON string, createdAt, updatedAt time.Time) (*models.UserProfile, error) {
	var fields profileFields
	if err := json.Unmarshal([]byte(profileJSON), &fields); err != nil {
		return nil, fmt.Errorf("%w: profile data for %s: %v", ErrCorruptRecord, participantID, err)
	}
	return &models.UserProfile{
		ParticipantID:        participantID,
		CreatedAt:            createdAt,
		UpdatedAt:            updatedAt,
		HabitDomain:          fields.HabitDomain,
		PromptAnchor:         fields.PromptAnchor,
		MotivationalFrame:    fields.MotivationalFrame,
		PreferredTime:        fields.PreferredTime,
		OtherPersonalization: fields.OtherPersonalization,
	}, nil
}

// encodeProfile serializes the profile's personalization fields for storage.
func encodeProfile(profile *models.UserProfile) (string, error) {
	data, err := json.Marshal(profileFields{
		HabitDomain:          profile.HabitDomain,
		PromptAnchor:         profile.PromptAnchor,
		MotivationalFrame:    profile.MotivationalFrame,
		PreferredTime:        profile.PreferredTime,
		OtherPersonalization: profile.OtherPersonalization,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	return string(data), nil
}
