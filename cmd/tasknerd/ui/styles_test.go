package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectTheme(t *testing.T) {
	tests := []struct {
		name     string
		colorFG  string
		darkMode string
		wantDark bool
	}{
		{"default light", "", "", false},
		{"dark background index", "15;0", "", true},
		{"light background index", "0;15", "", false},
		{"explicit dark mode", "", "1", true},
		{"garbage COLORFGBG", "x;y", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COLORFGBG", tt.colorFG)
			t.Setenv("TASKNERD_DARK_MODE", tt.darkMode)
			assert.Equal(t, tt.wantDark, DetectTheme().IsDark)
		})
	}
}

func TestForKind(t *testing.T) {
	s := NewStyles(LightTheme())
	assert.Equal(t, s.Confirmation.GetBorderLeftForeground(), s.ForKind("confirmation").GetBorderLeftForeground())
	assert.Equal(t, Destructive, s.ForKind("error").GetBorderLeftForeground())
	assert.Equal(t, Success, s.ForKind("mutation_performed").GetBorderLeftForeground())
	assert.Equal(t, s.AgentResponse.GetBorderLeftForeground(), s.ForKind("question").GetBorderLeftForeground())
}
