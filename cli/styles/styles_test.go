package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		name   string
		format func(string) string
		icon   string
	}{
		{"success", FormatSuccess, IconSuccess},
		{"error", FormatError, IconError},
		{"warning", FormatWarning, IconWarning},
		{"info", FormatInfo, IconInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.format("some message")
			assert.Contains(t, result, tt.icon)
			assert.Contains(t, result, "some message")
		})
	}
}

func TestFormatKeyValue(t *testing.T) {
	result := FormatKeyValue("Version", "3")
	assert.Contains(t, result, "Version")
	assert.Contains(t, result, "3")
}

func TestTable(t *testing.T) {
	table := NewTable("Stream", "Version")
	table.AddRow("Account-1", "3")
	table.AddRow("Account-22")
	table.AddRow("Order-1", "1", "ignored")

	assert.Equal(t, 3, table.Len())

	out := table.Render()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, out, "Account-22")
	assert.NotContains(t, out, "ignored")

	width := len([]rune(lines[0]))
	for _, l := range lines {
		assert.Equal(t, width, len([]rune(l)), "line %q", l)
	}
}

func TestTable_NoHeaders(t *testing.T) {
	assert.Equal(t, "", NewTable().Render())
}

func TestDisableColors(t *testing.T) {
	originalPrimary := Primary
	originalSuccess := Success
	t.Cleanup(func() {
		Primary = originalPrimary
		Success = originalSuccess
		build()
	})

	DisableColors()

	assert.Equal(t, "", string(Primary))
	assert.Equal(t, "", string(Success))
	assert.NotPanics(t, func() { _ = Banner() })
}
