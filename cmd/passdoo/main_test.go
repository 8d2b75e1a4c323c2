package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/balduz84/passdoo/internal/app"
	"github.com/balduz84/passdoo/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestStoreLockHint(t *testing.T) {
	assert.Nil(t, storeLockHint(nil))

	other := errors.New("failed to create storage manager: permission denied")
	assert.Equal(t, other, storeLockHint(other))

	locked := errors.New(`Cannot acquire directory lock on "/tmp/db".  Another process is using this Badger database.`)
	hinted := storeLockHint(locked)
	assert.ErrorIs(t, hinted, locked)
	assert.Contains(t, hinted.Error(), "passdoo serve")
}

func TestOpenApp_ExplainsHeldStore(t *testing.T) {
	config = common.NewDefaultConfig()
	config.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	config.Refresh.Enabled = false
	logger = arbor.NewLogger()

	running, err := app.New(config, logger)
	require.NoError(t, err)
	defer running.Close()

	_, err = openApp()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passdoo serve")
}
