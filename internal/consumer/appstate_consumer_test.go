package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResyncer struct {
	calls int
	err   error
}

func (f *fakeResyncer) Resync(ctx context.Context) error {
	f.calls++
	return f.err
}

type appStateEnv struct {
	alarms   *store.AlarmStore
	system   *system.Store
	resyncer *fakeResyncer
	consumer *AppStateConsumer
}

func newAppStateEnv(t *testing.T) *appStateEnv {
	t.Helper()
	kv := newFakeKVStore()
	alarms := store.NewAlarmStore(kv, "subway-alert:", "dev-1", zap.NewNop())
	sys := system.NewStore(kv, "subway-alert:", "dev-1", 10, zap.NewNop())
	resyncer := &fakeResyncer{}

	c := NewAppStateConsumer(testConfig(), "dev-1", nil, alarms, sys, resyncer, zap.NewNop())
	return &appStateEnv{alarms: alarms, system: sys, resyncer: resyncer, consumer: c}
}

func activeReport(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(models.AppStateReport{
		State:      "active",
		GpsOn:      true,
		Permission: &models.PermissionSnapshot{IOSLevel: "always"},
	})
	require.NoError(t, err)
	return data
}

func TestAppState_ForegroundTriggersResync(t *testing.T) {
	env := newAppStateEnv(t)
	createEligibleAlarm(t, &eventEnv{alarms: env.alarms})

	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	assert.Equal(t, 1, env.resyncer.calls)
}

func TestAppState_ThrottleAbsorbsRapidTransitions(t *testing.T) {
	env := newAppStateEnv(t)
	createEligibleAlarm(t, &eventEnv{alarms: env.alarms})

	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	assert.Equal(t, 1, env.resyncer.calls)

	// 节流窗口过后再次放行
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	assert.Equal(t, 2, env.resyncer.calls)
}

func TestAppState_BackgroundStateUpdatesPermissionOnly(t *testing.T) {
	env := newAppStateEnv(t)
	createEligibleAlarm(t, &eventEnv{alarms: env.alarms})

	data, err := json.Marshal(models.AppStateReport{
		State:      "background",
		GpsOn:      true,
		Permission: &models.PermissionSnapshot{IOSLevel: "always"},
	})
	require.NoError(t, err)

	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", data))

	assert.Zero(t, env.resyncer.calls)
	assert.True(t, env.system.BackgroundGeofencingViable())
}

func TestAppState_NotViableSkipsResync(t *testing.T) {
	env := newAppStateEnv(t)
	createEligibleAlarm(t, &eventEnv{alarms: env.alarms})

	data, err := json.Marshal(models.AppStateReport{
		State:      "active",
		GpsOn:      true,
		Permission: &models.PermissionSnapshot{IOSLevel: "whenInUse"},
	})
	require.NoError(t, err)

	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", data))
	assert.Zero(t, env.resyncer.calls)
}

func TestAppState_NoEnabledAlarmsSkipsResync(t *testing.T) {
	env := newAppStateEnv(t)

	require.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	assert.Zero(t, env.resyncer.calls)
}

func TestAppState_NeverPropagatesFailure(t *testing.T) {
	env := newAppStateEnv(t)
	createEligibleAlarm(t, &eventEnv{alarms: env.alarms})
	env.resyncer.err = assert.AnError

	assert.NoError(t, env.consumer.handleMessage("app/dev-1/state", activeReport(t)))
	assert.NoError(t, env.consumer.handleMessage("app/dev-1/state", []byte("not json")))
}
