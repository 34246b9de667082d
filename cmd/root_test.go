package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "sync", "schema", "syncs", "welcome"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadsync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("log-level", "")
		_ = rootCmd.PersistentFlags().Set("store", "")
		rootCmd.PersistentFlags().Lookup("log-level").Changed = false
		rootCmd.PersistentFlags().Lookup("store").Changed = false
	})

	c := &config.Config{Log: config.LogConfig{Level: "info"}, Store: config.StoreConfig{Driver: "sqlite"}}
	applyFlagOverrides(rootCmd, c)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "sqlite", c.Store.Driver)

	require.NoError(t, rootCmd.PersistentFlags().Set("log-level", "debug"))
	require.NoError(t, rootCmd.PersistentFlags().Set("store", "none"))
	applyFlagOverrides(rootCmd, c)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "none", c.Store.Driver)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSyncCommand_Flags(t *testing.T) {
	flag := syncCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)
}

func TestSyncsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range syncsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "export", "stats"} {
		assert.True(t, names[name], "expected syncs subcommand %q not found", name)
	}

	limit := syncsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
	require.NotNil(t, syncsExportCmd.Flags().Lookup("status"))
}

func TestWelcomeCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "group", "answers"} {
		assert.NotNil(t, welcomeCmd.Flags().Lookup(name), "welcome command should have --%s flag", name)
	}
}
