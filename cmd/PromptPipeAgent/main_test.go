package main

import (
	"testing"

	"github.com/BTreeMap/PromptPipeAgent/internal/api"
	"github.com/BTreeMap/PromptPipeAgent/internal/flow"
)

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PROMPTPIPE_STATE_DIR", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("CHAT_HISTORY_LIMIT", "")
	t.Setenv("DEBUG", "")

	config := loadEnvironmentConfig()

	if config.StateDir != DefaultStateDir {
		t.Errorf("StateDir = %q, want default %q", config.StateDir, DefaultStateDir)
	}
	if config.APIAddr != api.DefaultAddr {
		t.Errorf("APIAddr = %q, want default %q", config.APIAddr, api.DefaultAddr)
	}
	if config.HistoryLimit != flow.DefaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want default %d", config.HistoryLimit, flow.DefaultHistoryLimit)
	}
	if config.Debug {
		t.Error("Debug = true, want false by default")
	}
}

func TestLoadEnvironmentConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/agent")
	t.Setenv("PROMPTPIPE_STATE_DIR", "/tmp/agent-state")
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("CHAT_HISTORY_LIMIT", "-1")
	t.Setenv("DEBUG", "true")
	t.Setenv("COORDINATOR_PROMPT_FILE", "prompts/coordinator.txt")

	config := loadEnvironmentConfig()

	if config.DatabaseURL != "postgres://localhost/agent" {
		t.Errorf("DatabaseURL = %q, want env value", config.DatabaseURL)
	}
	if config.StateDir != "/tmp/agent-state" {
		t.Errorf("StateDir = %q, want env value", config.StateDir)
	}
	if config.APIAddr != ":9090" {
		t.Errorf("APIAddr = %q, want :9090", config.APIAddr)
	}
	if config.HistoryLimit != -1 {
		t.Errorf("HistoryLimit = %d, want -1", config.HistoryLimit)
	}
	if !config.Debug {
		t.Error("Debug = false, want true")
	}
	if config.CoordinatorPrompt != "prompts/coordinator.txt" {
		t.Errorf("CoordinatorPrompt = %q, want env value", config.CoordinatorPrompt)
	}
}
