package geofence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/junha0101/subway-alert/internal/geofence"
	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKVStore 仅用于单元测试（内存 KV）
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", store.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

// fakeRegistrar 记录注册调用
type fakeRegistrar struct {
	mu         sync.Mutex
	stopCalls  int
	startCalls [][]models.Region
	stopErr    error
	startErr   error
}

func (f *fakeRegistrar) StopMonitoring() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeRegistrar) StartMonitoring(regions []models.Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, regions)
	return f.startErr
}

func (f *fakeRegistrar) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startCalls)
}

func fptr(v float64) *float64 { return &v }

func newTestEnv(t *testing.T, debounce time.Duration) (*store.AlarmStore, *system.Store, *fakeRegistrar, *geofence.Synchronizer) {
	t.Helper()
	kv := newFakeKVStore()
	alarms := store.NewAlarmStore(kv, "subway-alert:", "dev-1", zap.NewNop())
	sys := system.NewStore(kv, "subway-alert:", "dev-1", 10, zap.NewNop())
	reg := &fakeRegistrar{}
	syncer := geofence.NewSynchronizer(alarms, sys, reg, debounce, zap.NewNop())
	return alarms, sys, reg, syncer
}

func eligibleDraft(title string) *models.Alarm {
	return &models.Alarm{
		Title:           title,
		Trigger:         models.TriggerEnter,
		StationAPIName:  "인덕원",
		DirKey:          models.DirUp,
		NeighborAPIName: "정부과천청사",
		Latitude:        fptr(37.4), Longitude: fptr(126.9),
	}
}

func TestRegionsFromAlarms_Eligibility(t *testing.T) {
	lat, lng := fptr(37.4), fptr(126.9)
	alarms := []*models.Alarm{
		{ID: "ok", Enabled: true, Trigger: models.TriggerEnter, RadiusM: 100,
			Location: &models.LatLng{Lat: *lat, Lng: *lng},
			StationAPIName: "인덕원", DirKey: "up", NeighborAPIName: "정부과천청사"},
		{ID: "disabled", Enabled: false, Trigger: models.TriggerEnter, RadiusM: 100,
			Location: &models.LatLng{Lat: *lat, Lng: *lng},
			StationAPIName: "인덕원", DirKey: "up", NeighborAPIName: "정부과천청사"},
		{ID: "no-coords", Enabled: true, Trigger: models.TriggerEnter, RadiusM: 100,
			StationAPIName: "인덕원", DirKey: "up", NeighborAPIName: "정부과천청사"},
		{ID: "no-direction", Enabled: true, Trigger: models.TriggerEnter, RadiusM: 100,
			Location: &models.LatLng{Lat: *lat, Lng: *lng}},
		{ID: "exit-kind", Enabled: true, Trigger: models.TriggerExit, RadiusM: 100,
			Location: &models.LatLng{Lat: *lat, Lng: *lng},
			StationAPIName: "인덕원", DirKey: "up", NeighborAPIName: "정부과천청사"},
	}

	regions := geofence.RegionsFromAlarms(alarms)
	require.Len(t, regions, 2)

	assert.Equal(t, "alarm:ok", regions[0].Identifier)
	assert.True(t, regions[0].NotifyOnEnter)
	assert.False(t, regions[0].NotifyOnExit)
	assert.Equal(t, float64(100), regions[0].Radius)

	assert.Equal(t, "alarm:exit-kind", regions[1].Identifier)
	assert.False(t, regions[1].NotifyOnEnter)
	assert.True(t, regions[1].NotifyOnExit)
}

func TestResync(t *testing.T) {
	alarms, sys, reg, syncer := newTestEnv(t, time.Hour)
	ctx := context.Background()

	_, err := alarms.Create(ctx, eligibleDraft("a"))
	require.NoError(t, err)

	require.NoError(t, syncer.Resync(ctx))

	assert.Equal(t, 1, reg.stopCalls)
	require.Equal(t, 1, reg.startCount())
	assert.Len(t, reg.startCalls[0], 1)

	meta := sys.GeofenceMeta()
	assert.Equal(t, 1, meta.RegisteredCount)
	assert.NotNil(t, meta.LastSyncAt)
	assert.NotEmpty(t, meta.Logs)
}

func TestResync_EmptySetSkipsRegistration(t *testing.T) {
	_, sys, reg, syncer := newTestEnv(t, time.Hour)

	require.NoError(t, syncer.Resync(context.Background()))

	// 仍会清空，但不会用空列表调用注册
	assert.Equal(t, 1, reg.stopCalls)
	assert.Equal(t, 0, reg.startCount())

	meta := sys.GeofenceMeta()
	assert.Equal(t, 0, meta.RegisteredCount)
	assert.NotNil(t, meta.LastSyncAt)
}

func TestResync_StopErrorIgnored(t *testing.T) {
	alarms, _, reg, syncer := newTestEnv(t, time.Hour)
	reg.stopErr = errors.New("was not running")

	_, err := alarms.Create(context.Background(), eligibleDraft("a"))
	require.NoError(t, err)

	assert.NoError(t, syncer.Resync(context.Background()))
	assert.Equal(t, 1, reg.startCount())
}

func TestResync_RegistrationFailurePropagates(t *testing.T) {
	alarms, sys, reg, syncer := newTestEnv(t, time.Hour)
	reg.startErr = errors.New("broker unavailable")

	_, err := alarms.Create(context.Background(), eligibleDraft("a"))
	require.NoError(t, err)

	assert.Error(t, syncer.Resync(context.Background()))

	meta := sys.GeofenceMeta()
	assert.Equal(t, 0, meta.RegisteredCount)
	assert.NotNil(t, meta.LastSyncAt)
	require.NotEmpty(t, meta.Logs)
	assert.Contains(t, meta.Logs[0], "geofence sync failed")
}

func TestScheduleResync_Debounce(t *testing.T) {
	alarms, _, reg, syncer := newTestEnv(t, 50*time.Millisecond)
	defer syncer.Stop()

	_, err := alarms.Create(context.Background(), eligibleDraft("a"))
	require.NoError(t, err)

	// 窗口内多次变更合并为一次 resync
	syncer.ScheduleResync()
	syncer.ScheduleResync()
	syncer.ScheduleResync()

	assert.Eventually(t, func() bool {
		return reg.startCount() == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, reg.startCount())
}
