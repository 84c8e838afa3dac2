package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, name := range []string{"serve", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateFailsOnMissingConfigFile(t *testing.T) {
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Error(t, root.Execute())
}

func TestServeRequiresGatewayConfig(t *testing.T) {
	t.Setenv("STRIPE_API_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("FRONTEND_STORE_URL", "")

	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.SetArgs([]string{"serve"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_API_KEY")
}
