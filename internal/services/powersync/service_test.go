package powersync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/conductor"
	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/queue"
	"github.com/ternarybob/ferrum/internal/services/events"
	badgerstorage "github.com/ternarybob/ferrum/internal/storage/badger"
)

func newTestService(t *testing.T, config *common.Config) *Service {
	t.Helper()

	logger := common.GetLogger()
	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "data"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	store, ok := storage.DB().(*badgerhold.Store)
	require.True(t, ok, "storage manager is not backed by BadgerDB")
	queueMgr, err := queue.NewManager(store.Badger(), time.Minute, 3)
	require.NoError(t, err)

	eventSvc := events.NewService(logger)
	t.Cleanup(eventSvc.Close)

	c := conductor.New(config, storage, queueMgr, eventSvc, execcmd.NewFakeExecutor())
	return NewService(c, config)
}

func TestStartStop(t *testing.T) {
	config := common.NewDefaultConfig()
	svc := newTestService(t, config)

	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	err := svc.Start()
	assert.Error(t, err, "second start should be rejected")

	svc.Stop()
	svc.Stop() // repeat stop is a no-op

	require.NoError(t, svc.Start(), "restart after stop")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	config := common.NewDefaultConfig()
	config.PowerSync.Schedule = "not a cron expression"
	svc := newTestService(t, config)

	err := svc.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power sync")
}

func TestStartWithSyncDisabled(t *testing.T) {
	config := common.NewDefaultConfig()
	config.PowerSync.Enabled = false
	svc := newTestService(t, config)

	require.NoError(t, svc.Start())
	svc.Stop()
}
