package updater

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type hostFunc func(path string, args []string) error

func (f hostFunc) Relaunch(path string, args []string) error { return f(path, args) }

func TestUpdateArguments(t *testing.T) {
	t.Run("installed-copy", func(t *testing.T) {
		u := helperCreateUpdater(t)
		u.app.Installed = true

		assert.Equal(t, []string{"--install", "-m", "--config-path", u.app.ConfigDir}, u.updateArguments())
	})

	t.Run("portable-copy-in-a-writable-dir", func(t *testing.T) {
		u := helperCreateUpdater(t)

		want := []string{"--create-portable", "-m", "--portable-path", u.app.AppDir, "--config-path", u.app.ConfigDir}
		assert.Equal(t, want, u.updateArguments())
	})

	t.Run("portable-copy-in-an-unwritable-dir", func(t *testing.T) {
		u := helperCreateUpdater(t)
		u.app.AppDir = filepath.Join(u.Config.DataDir, "does-not-exist")

		assert.Equal(t, []string{"--launcher", "--config-path", u.app.ConfigDir}, u.updateArguments())
	})

	t.Run("disabled-addons-are-forwarded", func(t *testing.T) {
		u := helperCreateUpdater(t)
		u.app.Installed = true
		u.app.AddonsDisabled = true

		want := []string{"--install", "-m", "--disable-addons", "--config-path", u.app.ConfigDir}
		assert.Equal(t, want, u.updateArguments())
	})
}

func TestExecuteUpdateClearsPendingBeforeHandoff(t *testing.T) {
	u := helperCreateUpdater(t)

	artifact := filepath.Join(u.Config.DataDir, "lumen_update_1")
	helperWriteArtifact(t, artifact)
	u.setState(u.State().WithPending(&UpdateInfo{Version: "2026.1", APIVersion: "2026.1"}, artifact))

	var relaunchedPath string
	var relaunchedArgs []string
	var stateAtHandoff State
	u.SetHost(hostFunc(func(path string, args []string) error {
		relaunchedPath = path
		relaunchedArgs = args
		stateAtHandoff = u.State()
		return nil
	}))

	assert.NoError(t, u.ExecutePendingUpdate())
	assert.Equal(t, artifact, relaunchedPath)
	assert.Contains(t, relaunchedArgs, "--config-path")
	assert.Equal(t, "", stateAtHandoff.PendingUpdateFile, "the pending record must be cleared before the handoff")

	// and the cleared record is already on disk at that point
	reloaded := LoadState(u.Config.stateFilePath(), "2025.1")
	assert.Equal(t, "", reloaded.PendingUpdateFile)
}

func TestExecuteUpdateDuringShutdown(t *testing.T) {
	u := helperCreateUpdater(t)
	u.SetHost(hostFunc(func(path string, args []string) error {
		return ErrShutdownInProgress
	}))

	err := u.ExecuteUpdate(filepath.Join(u.Config.DataDir, "lumen_update_1"))
	assert.Equal(t, ErrShutdownInProgress, errors.Cause(err))
}

func TestExecuteUpdateEmptyPath(t *testing.T) {
	u := helperCreateUpdater(t)
	u.SetHost(hostFunc(func(path string, args []string) error { return nil }))

	assert.Error(t, u.ExecuteUpdate(""))
}

func TestExecuteUpdateWithoutHost(t *testing.T) {
	u := helperCreateUpdater(t)
	assert.Error(t, u.ExecuteUpdate("/somewhere/lumen_update_1"))
}

func TestExecutePendingUpdateWithoutPending(t *testing.T) {
	u := helperCreateUpdater(t)

	called := false
	u.SetHost(hostFunc(func(path string, args []string) error {
		called = true
		return nil
	}))

	assert.NoError(t, u.ExecutePendingUpdate())
	assert.False(t, called, "nothing must be relaunched when no update is pending")
}
