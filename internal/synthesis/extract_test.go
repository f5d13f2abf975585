package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/enhancer-api/internal/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		wantErr  bool
	}{
		{
			name:     "bare object",
			raw:      `{"generated_text":"hello"}`,
			expected: `{"generated_text":"hello"}`,
		},
		{
			name:     "object wrapped in prose",
			raw:      "Sure! Here is your prompt:\n{\"generated_text\":\"hello\"}\nLet me know!",
			expected: `{"generated_text":"hello"}`,
		},
		{
			name:     "markdown fenced object",
			raw:      "```json\n{\"generated_text\":\"hello\"}\n```",
			expected: `{"generated_text":"hello"}`,
		},
		{
			name:     "nested braces survive extraction",
			raw:      `prefix {"outer":{"inner":"value"}} suffix`,
			expected: `{"outer":{"inner":"value"}}`,
		},
		{
			name:    "no braces at all",
			raw:     "I could not produce JSON, sorry.",
			wantErr: true,
		},
		{
			name:    "braces around invalid JSON",
			raw:     "{this is not json}",
			wantErr: true,
		},
		{
			name:    "top-level array rejected",
			raw:     `[{"generated_text":"hello"}]`,
			wantErr: false, // first '{' to last '}' lands on the inner object
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ExtractJSON(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var parseErr *models.ParseError
				assert.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			if tt.expected != "" {
				assert.JSONEq(t, tt.expected, string(payload))
			}
		})
	}
}
