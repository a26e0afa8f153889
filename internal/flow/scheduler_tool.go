// Package flow provides scheduler tool functionality for persisting daily prompt schedules.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// timePattern matches 24-hour HH:MM times.
var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// SchedulePreference is the schedule document persisted under the
// "schedule" state-data key. The external delivery system consumes it;
// this service only records the participant's preference.
type SchedulePreference struct {
	Time    string `json:"time"`
	Message string `json:"message,omitempty"`
	Enabled bool   `json:"enabled"`
}

// SchedulerTool records a participant's daily prompt schedule preference.
type SchedulerTool struct {
	store store.Store
}

// NewSchedulerTool creates a new scheduler tool instance.
func NewSchedulerTool(st store.Store) *SchedulerTool {
	slog.Debug("SchedulerTool.NewSchedulerTool: creating scheduler tool", "hasStore", st != nil)
	return &SchedulerTool{store: st}
}

// GetToolDefinition returns the OpenAI tool definition for scheduling daily prompts.
func (st *SchedulerTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "schedule_daily_prompt",
			Description: openai.String("Schedule a daily habit prompt for the user at a fixed time. Use this after the user has agreed on a time for receiving their daily prompt."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"time": map[string]interface{}{
						"type":        "string",
						"description": "The time of day to send the prompt, 24-hour HH:MM format (e.g. 09:00)",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "Optional fixed prompt text to deliver; omit to deliver a freshly generated prompt each day",
					},
				},
				"required": []string{"time"},
			},
		},
	}
}

// ExecuteScheduler persists the schedule preference, last-write-wins.
func (st *SchedulerTool) ExecuteScheduler(ctx context.Context, participantID string, args map[string]interface{}) (string, error) {
	slog.Debug("SchedulerTool.ExecuteScheduler: executing scheduler",
		"participantID", participantID, "args", args)

	if st.store == nil {
		err := fmt.Errorf("store is required for scheduling")
		slog.Error("SchedulerTool.ExecuteScheduler: missing store", "error", err)
		return "", err
	}

	timeStr, ok := args["time"].(string)
	if !ok || timeStr == "" {
		slog.Warn("SchedulerTool.ExecuteScheduler: time missing", "participantID", participantID)
		return "", fmt.Errorf("time is required and must be a string in HH:MM format")
	}
	if !timePattern.MatchString(timeStr) {
		slog.Warn("SchedulerTool.ExecuteScheduler: invalid time format", "participantID", participantID, "time", timeStr)
		return "", fmt.Errorf("invalid time format %q, expected 24-hour HH:MM", timeStr)
	}

	message, _ := args["message"].(string)

	pref := SchedulePreference{
		Time:    timeStr,
		Message: message,
		Enabled: true,
	}
	value, err := json.Marshal(pref)
	if err != nil {
		slog.Error("SchedulerTool.ExecuteScheduler: failed to marshal schedule", "error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to marshal schedule: %w", err)
	}

	if err := st.store.SetStateData(ctx, participantID, models.DataKeySchedule, value); err != nil {
		slog.Error("SchedulerTool.ExecuteScheduler: failed to persist schedule",
			"error", err, "participantID", participantID)
		return "", fmt.Errorf("failed to persist schedule: %w", err)
	}

	slog.Info("SchedulerTool.ExecuteScheduler: schedule saved",
		"participantID", participantID, "time", timeStr, "hasMessage", message != "")

	return fmt.Sprintf("Daily prompt scheduled for %s", timeStr), nil
}
