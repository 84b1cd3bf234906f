package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"categorize", "seasonal", "isochrones", "hotspots", "potential", "analyze", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "tourism-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestInputFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		missing []string
	}{
		{name: "analyze", flags: []string{"pois", "boundary", "network", "out", "city"}},
		{name: "isochrones", flags: []string{"pois", "boundary", "network", "out"}},
		{name: "potential", flags: []string{"pois", "boundary", "out", "top"}, missing: []string{"network"}},
		{name: "hotspots", flags: []string{"pois", "boundary", "season"}, missing: []string{"network"}},
		{name: "seasonal", flags: []string{"pois", "rules"}, missing: []string{"boundary", "network"}},
		{name: "categorize", flags: []string{"pois", "boundary"}, missing: []string{"network"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(f), "--%s", f)
			}
			for _, f := range tt.missing {
				assert.Nil(t, cmd.Flags().Lookup(f), "--%s", f)
			}
		})
	}
}

func TestPotentialCommand_Flags(t *testing.T) {
	flag := potentialCmd.Flags().Lookup("top")
	require.NotNil(t, flag, "potential command should have --top flag")
	assert.Equal(t, "10", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "cells", "isochrones"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)

	assert.NotNil(t, runsIsochronesCmd.Flags().Lookup("file"))
}
