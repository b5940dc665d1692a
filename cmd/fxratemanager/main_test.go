package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/auth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCreate(t *testing.T) {
	out, err := run(t, "token", "create", "--name", "ci", "--role", auth.RoleOperator, "--expires", "30d")
	require.NoError(t, err)

	var raw string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "token: "); ok {
			raw = v
		}
	}
	require.Len(t, raw, 64)
	assert.Contains(t, out, "- name: ci")
	assert.Contains(t, out, "role: operator")
	assert.Contains(t, out, "expires_at:")
	assert.Contains(t, out, `hash: "$2a$`)
}

func TestTokenCreate_RejectsUnknownRole(t *testing.T) {
	_, err := run(t, "token", "create", "--role", "root")
	assert.Error(t, err)
}

func TestMigrate_UpAndStatus(t *testing.T) {
	t.Setenv("FXRATES_STORAGE_DRIVER", "sqlite")
	t.Setenv("FXRATES_STORAGE_DSN", filepath.Join(t.TempDir(), "cache.db"))

	out, err := run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 migration(s)")

	out, err = run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "applied"))
	assert.NotContains(t, out, "pending")
}

func TestRate_RequiresTwoCurrencies(t *testing.T) {
	_, err := run(t, "rate", "USD")
	assert.Error(t, err)
}
