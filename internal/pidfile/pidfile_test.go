package pidfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/pidfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRefusesLiveInstance(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	require.NoError(t, pidfile.Write())

	data, err := os.ReadFile(filepath.Join(dir, "ecud.pid"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// The recorded PID is our own, so it is alive and a second writer
	// must refuse.
	err = pidfile.Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	require.NoError(t, pidfile.Remove())
	require.NoError(t, pidfile.Remove(), "removing an absent file is fine")
}

func TestWriteReclaimsStalePIDFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	// Leftover from an instance that no longer exists
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ecud.pid"), []byte("999999999"), 0o600))

	require.NoError(t, pidfile.Write())
}
