package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"true", "true", false, true},
		{"numeric true", "1", false, true},
		{"yes", "yes", false, true},
		{"uppercase on", "ON", false, true},
		{"false", "false", true, false},
		{"numeric false", "0", true, false},
		{"off", "off", true, false},
		{"empty uses default", "", true, true},
		{"invalid uses default", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_ENV", tt.value)
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   int
		want  int
	}{
		{"positive", "42", 0, 42},
		{"negative", "-1", 0, -1},
		{"zero", "0", 5, 0},
		{"whitespace", " 7 ", 0, 7},
		{"empty uses default", "", 30, 30},
		{"invalid uses default", "lots", 30, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_ENV", tt.value)
			if got := ParseIntEnv("TEST_INT_ENV", tt.def); got != tt.want {
				t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", tt.value, tt.def, got, tt.want)
			}
		})
	}
}
