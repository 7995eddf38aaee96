package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknerd/internal/types"
)

func TestSuggestPriority(t *testing.T) {
	tests := []struct {
		text    string
		want    types.Priority
		negated bool
	}{
		{"high", types.PriorityHigh, false},
		{"Urgent!", types.PriorityHigh, false},
		{"make it low", types.PriorityLow, false},
		{"normal", types.PriorityMedium, false},
		{"This is urgent", types.PriorityHigh, false},
		{"I have an important meeting", types.PriorityHigh, false},
		{"need this ASAP", types.PriorityHigh, false},
		{"high priority task", types.PriorityHigh, false},
		{"priority: medium", types.PriorityMedium, false},
		{"set the priority to low", types.PriorityLow, false},
		{"do this someday", types.PriorityLow, false},
		{"minor fix", types.PriorityLow, false},
		{"not urgent", types.PriorityLow, true},
		{"it's not very important", types.PriorityLow, true},
		{"it's not high priority", types.PriorityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := SuggestPriority(tt.text)
			require.True(t, got.Found())
			assert.Equal(t, tt.want, got.Priority)
			assert.Equal(t, tt.negated, got.Negated)
			if tt.negated {
				assert.False(t, got.Certain())
				assert.Less(t, got.Confidence, 0.5)
			} else {
				assert.True(t, got.Certain())
			}
		})
	}
}

func TestSuggestPriorityNoSignal(t *testing.T) {
	for _, text := range []string{"", "buy milk", "call mom tomorrow", "high school reunion"} {
		t.Run(text, func(t *testing.T) {
			assert.False(t, SuggestPriority(text).Found())
		})
	}
}

func TestStripPriorityPhrases(t *testing.T) {
	assert.Equal(t, "finish report", StripPriorityPhrases("finish report high priority"))
	assert.Equal(t, "call the bank", StripPriorityPhrases("URGENT call the bank"))
	assert.Equal(t, "buy milk", StripPriorityPhrases("buy milk"))
}

func TestValidateTitle(t *testing.T) {
	got, err := ValidateTitle("  buy milk  ")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got)

	_, err = ValidateTitle(strings.Repeat("a", MaxTitleLength))
	assert.NoError(t, err)

	for name, bad := range map[string]string{
		"empty":      "",
		"whitespace": " \t\n",
		"too long":   strings.Repeat("a", MaxTitleLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateTitle(bad)
			var ve *types.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, types.FieldTitle, ve.Field)
		})
	}
}

func TestValidateDescription(t *testing.T) {
	got, err := ValidateDescription("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ValidateDescription(strings.Repeat("é", MaxDescriptionLength))
	assert.NoError(t, err, "limit counts characters, not bytes")

	_, err = ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1))
	var ve *types.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, types.FieldDescription, ve.Field)
}

func TestValidatePriority(t *testing.T) {
	p, err := ValidatePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, types.PriorityHigh, p)

	p, err = ValidatePriority("urgent")
	require.NoError(t, err)
	assert.Equal(t, types.PriorityHigh, p)

	_, err = ValidatePriority("extreme")
	assert.Error(t, err)

	_, err = ValidatePriority("not urgent")
	assert.Error(t, err, "negated keywords are not a valid priority value")
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, ValidatePayload(types.TaskPayload{Title: "x", Priority: types.PriorityLow}))
	assert.Error(t, ValidatePayload(types.TaskPayload{Title: " ", Priority: types.PriorityLow}))
	assert.Error(t, ValidatePayload(types.TaskPayload{Title: "x", Priority: "bogus"}))
}
