package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
storage:
  driver: local
  local:
    path: %s
auth:
  session_file: %s
  argon2:
    memory: 1024
    iterations: 1
    parallelism: 1
attachments:
  dir: %s
`, filepath.Join(dir, "lab.db"), filepath.Join(dir, "session"), filepath.Join(dir, "files"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func labctl(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"--config", configPath}, args...), strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestSessionLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	_, err := labctl(t, cfg, "", "whoami")
	assert.True(t, types.IsAuth(err))

	_, err = labctl(t, cfg, "", "login", "--email", "admin@labmanager.local", "--password", "wrong")
	assert.ErrorIs(t, err, types.ErrInvalidCredentials)

	out, err := labctl(t, cfg, "admin123\n", "login", "--email", "admin@labmanager.local")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as")

	out, err = labctl(t, cfg, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin@labmanager.local")
	assert.Contains(t, out, "role=admin")

	_, err = labctl(t, cfg, "", "logout")
	require.NoError(t, err)

	_, err = labctl(t, cfg, "", "whoami")
	assert.True(t, types.IsAuth(err))
}

func TestDeviceCommands(t *testing.T) {
	cfg := writeConfig(t)
	_, err := labctl(t, cfg, "", "login", "--email", "admin@labmanager.local", "--password", "admin123")
	require.NoError(t, err)

	out, err := labctl(t, cfg, "", "devices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PAT-001")
	assert.True(t, strings.HasPrefix(out, "ID"))

	out, err = labctl(t, cfg, "", "devices", "check", "PAT-001", "--fail", "mouse")
	require.NoError(t, err)
	assert.Equal(t, "PAT-001 is now Manutenção\n", out)

	out, err = labctl(t, cfg, "", "devices", "check", "PAT-001")
	require.NoError(t, err)
	assert.Equal(t, "PAT-001 is now Operacional\n", out)

	_, err = labctl(t, cfg, "", "devices", "check", "PAT-404")
	assert.True(t, types.IsNotFound(err))

	csvPath := filepath.Join(t.TempDir(), "devices.csv")
	out, err = labctl(t, cfg, "", "export", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported")
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PAT-001")

	out, err = labctl(t, cfg, "", "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0")
}

func TestResetNeedsConfirmation(t *testing.T) {
	cfg := writeConfig(t)
	_, err := labctl(t, cfg, "", "login", "--email", "admin@labmanager.local", "--password", "admin123")
	require.NoError(t, err)

	_, err = labctl(t, cfg, "", "reset")
	assert.ErrorIs(t, err, errUsage)

	out, err := labctl(t, cfg, "", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "reset")
}

func TestTemplateWithoutSession(t *testing.T) {
	cfg := writeConfig(t)
	path := filepath.Join(t.TempDir(), "template.xlsx")

	_, err := labctl(t, cfg, "", "template", path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestUsageErrors(t *testing.T) {
	cfg := writeConfig(t)
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"devices"},
		{"devices", "explode"},
		{"login"},
		{"import"},
	} {
		_, err := labctl(t, cfg, "", args...)
		assert.ErrorIs(t, err, errUsage, "args %v", args)
	}
}

func TestCheckInput(t *testing.T) {
	in, err := checkInput(nil)
	require.NoError(t, err)
	assert.True(t, in.Keyboard && in.Mouse && in.Monitor && in.Cables && in.Software)

	in, err = checkInput([]string{"Mouse", " cables "})
	require.NoError(t, err)
	assert.False(t, in.Mouse)
	assert.False(t, in.Cables)
	assert.True(t, in.Keyboard)

	_, err = checkInput([]string{"screen"})
	assert.ErrorIs(t, err, errUsage)
}
