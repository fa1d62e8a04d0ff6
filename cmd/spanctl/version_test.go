package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name     string
		json     bool
		expected []string
	}{
		{
			name: "text",
			expected: []string{
				"spanctl dev", "commit: none", "built: unknown",
				"page size: 8192 bytes", "up to 262144 bytes", "up to 128 pages",
			},
		},
		{
			name:     "json",
			json:     true,
			expected: []string{`"page_size": 8192`, `"max_bytes": 262144`, `"max_pages": 128`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			jsonOut = tt.json

			output, err := captureOutput(t, runVersion)
			require.NoError(t, err)
			if tt.json {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.expected)
		})
	}
}

func TestVersionCommand_JSONRoundTrip(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	output, err := captureOutput(t, runVersion)
	require.NoError(t, err)

	var got buildInfo
	require.NoError(t, json.Unmarshal([]byte(output), &got))
	require.Equal(t, currentBuild(), got)
}

func TestRootCommand_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"classes", "stress", "version"})
}
