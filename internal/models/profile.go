// Package models defines user profile structures for personalized habit prompts.
package models

import (
	"fmt"
	"strings"
	"time"
)

// UserProfile holds the personalization data collected by the intake handler
// and consumed by the prompt generator and feedback tracker.
type UserProfile struct {
	ParticipantID string    `json:"participant_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	HabitDomain          string `json:"habit_domain,omitempty"`          // e.g. "fitness", "mindfulness"
	PromptAnchor         string `json:"prompt_anchor,omitempty"`         // natural moment for the habit, e.g. "waiting for coffee"
	MotivationalFrame    string `json:"motivational_frame,omitempty"`    // why this matters to the user
	PreferredTime        string `json:"preferred_time,omitempty"`        // when prompts should arrive, e.g. "8-9am"
	OtherPersonalization string `json:"other_personalization,omitempty"` // free-text extras
}

// Validate ensures the user profile has required fields.
func (up *UserProfile) Validate() error {
	if up.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	return nil
}

// ContextString renders the sparse profile as context for the language model.
func (up *UserProfile) ContextString() string {
	var parts []string
	if up.HabitDomain != "" {
		parts = append(parts, "Habit Domain: "+up.HabitDomain)
	}
	if up.PromptAnchor != "" {
		parts = append(parts, "Prompt Anchor: "+up.PromptAnchor)
	}
	if up.MotivationalFrame != "" {
		parts = append(parts, "Motivational Frame: "+up.MotivationalFrame)
	}
	if up.PreferredTime != "" {
		parts = append(parts, "Preferred Time: "+up.PreferredTime)
	}
	if up.OtherPersonalization != "" {
		parts = append(parts, "Other Personalization: "+up.OtherPersonalization)
	}
	if len(parts) == 0 {
		return "No profile data available."
	}
	return strings.Join(parts, "\n")
}

// ProfilePatch carries a field-level profile update. A nil field retains the
// prior stored value; a non-nil field overwrites it. This is the merge
// contract: a field once set and later omitted is preserved, not cleared.
type ProfilePatch struct {
	HabitDomain          *string `json:"habit_domain,omitempty"`
	PromptAnchor         *string `json:"prompt_anchor,omitempty"`
	MotivationalFrame    *string `json:"motivational_frame,omitempty"`
	PreferredTime        *string `json:"preferred_time,omitempty"`
	OtherPersonalization *string `json:"other_personalization,omitempty"`
}

// IsEmpty reports whether the patch carries no field updates.
func (p ProfilePatch) IsEmpty() bool {
	return p.HabitDomain == nil && p.PromptAnchor == nil && p.MotivationalFrame == nil &&
		p.PreferredTime == nil && p.OtherPersonalization == nil
}

// ApplyTo overwrites the profile's fields with the patch's non-nil values.
func (p ProfilePatch) ApplyTo(up *UserProfile) {
	if p.HabitDomain != nil {
		up.HabitDomain = *p.HabitDomain
	}
	if p.PromptAnchor != nil {
		up.PromptAnchor = *p.PromptAnchor
	}
	if p.MotivationalFrame != nil {
		up.MotivationalFrame = *p.MotivationalFrame
	}
	if p.PreferredTime != nil {
		up.PreferredTime = *p.PreferredTime
	}
	if p.OtherPersonalization != nil {
		up.OtherPersonalization = *p.OtherPersonalization
	}
}
