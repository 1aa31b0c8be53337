package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*store.AlarmStore, *int) {
	t.Helper()
	s := store.NewAlarmStore(newFakeKVStore(), "subway-alert:", "dev-1", zap.NewNop())
	changes := 0
	s.SetChangeListener(func() { changes++ })
	return s, &changes
}

func fptr(v float64) *float64 { return &v }

func TestCreate(t *testing.T) {
	s, changes := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &models.Alarm{
		Title:     "강남역 2호선 (역삼 방면)",
		Days:      []int{1, 2, 3, 4, 5},
		StartTime: "07:00",
		EndTime:   "09:30",
		Trigger:   models.TriggerEnter,
		Latitude:  fptr(37.4979),
		Longitude: fptr(127.0276),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, float64(store.FixedRadiusM), created.RadiusM)
	assert.True(t, created.Enabled)
	assert.NotZero(t, created.CreatedAt)
	assert.Equal(t, 1, *changes)

	// 历史坐标形态在写边界归一化
	require.NotNil(t, created.Location)
	assert.Equal(t, 37.4979, created.Location.Lat)
	assert.Nil(t, created.Latitude)

	// 新建插入头部
	second, err := s.Create(ctx, &models.Alarm{Title: "second"})
	require.NoError(t, err)
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestCreate_CoordinateShapesEquivalent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, &models.Alarm{Latitude: fptr(37.5), Longitude: fptr(127.1)})
	require.NoError(t, err)
	b, err := s.Create(ctx, &models.Alarm{Lat: fptr(37.5), Lng: fptr(127.1)})
	require.NoError(t, err)
	c, err := s.Create(ctx, &models.Alarm{Coords: &models.LegacyPoint{Latitude: fptr(37.5), Longitude: fptr(127.1)}})
	require.NoError(t, err)

	for _, alarm := range []*models.Alarm{a, b, c} {
		lat, lng, ok := alarm.Coordinates()
		require.True(t, ok)
		assert.Equal(t, 37.5, lat)
		assert.Equal(t, 127.1, lng)
	}
}

func TestToggle(t *testing.T) {
	s, changes := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &models.Alarm{Title: "t"})
	require.NoError(t, err)
	*changes = 0

	require.NoError(t, s.Toggle(ctx, created.ID))
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 1, *changes)

	// 再翻转一次回到原值，其余字段不变
	require.NoError(t, s.Toggle(ctx, created.ID))
	got, err = s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	assert.ErrorIs(t, s.Toggle(ctx, "missing"), store.ErrAlarmNotFound)
}

func TestRemove(t *testing.T) {
	s, changes := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, &models.Alarm{Title: "a"})
	require.NoError(t, err)
	b, err := s.Create(ctx, &models.Alarm{Title: "b"})
	require.NoError(t, err)
	*changes = 0

	require.NoError(t, s.Remove(ctx, a.ID))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, 1, *changes)

	// 不存在的 id：集合不变、不触发重同步
	require.NoError(t, s.Remove(ctx, "missing"))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, *changes)
}

func TestRemoveMany(t *testing.T) {
	s, changes := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, &models.Alarm{Title: "a"})
	b, _ := s.Create(ctx, &models.Alarm{Title: "b"})
	c, _ := s.Create(ctx, &models.Alarm{Title: "c"})
	*changes = 0

	require.NoError(t, s.RemoveMany(ctx, []string{a.ID, c.ID, "missing"}))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, 1, *changes)
}

func TestMarkTriggered(t *testing.T) {
	s, changes := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &models.Alarm{Title: "t"})
	require.NoError(t, err)
	*changes = 0

	now := time.Now().UnixMilli()
	require.NoError(t, s.MarkTriggered(ctx, created.ID, now))

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggeredAt)
	assert.Equal(t, now, *got.LastTriggeredAt)

	// 冷却变更不触发围栏重同步
	assert.Equal(t, 0, *changes)

	// 后台冷却更新与前台删除竞争：缺失 id 为安全 no-op
	assert.NoError(t, s.MarkTriggered(ctx, "missing", now))
}

func TestFavorites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	fav := models.Favorite{
		Key:         "indeogwon|4호선|정부과천청사 방면",
		StationID:   "indeogwon",
		StationName: "인덕원역",
		Line:        "4호선",
		Direction:   "정부과천청사 방면",
	}
	require.NoError(t, s.AddFavorite(ctx, fav))

	exists, err := s.ExistsFavorite(ctx, fav.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	// 重复键静默 no-op，集合不变
	require.NoError(t, s.AddFavorite(ctx, fav))
	favs, err := s.Favorites(ctx)
	require.NoError(t, err)
	assert.Len(t, favs, 1)

	require.NoError(t, s.RemoveFavorite(ctx, fav.Key))
	exists, err = s.ExistsFavorite(ctx, fav.Key)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.RemoveFavorite(ctx, "missing"))
}

func TestCustomPhrases(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	phrases, err := s.CustomPhrases(ctx)
	require.NoError(t, err)
	assert.Empty(t, phrases)

	require.NoError(t, s.SetCustomPhrases(ctx, []string{"오늘도 화이팅!"}))
	phrases, err = s.CustomPhrases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"오늘도 화이팅!"}, phrases)
}

func TestRehydrate_Migration(t *testing.T) {
	kv := newFakeKVStore()
	ctx := context.Background()

	// 历史格式：半径缺失、createdAt 缺失、坐标为 legacy 形态、favorites 缺失
	legacy := `{"alarms":[{"id":"a1","title":"old","radiusM":0,"enabled":true,"lat":37.5,"lng":127.1}]}`
	require.NoError(t, kv.Set(ctx, "subway-alert:dev-1:store", legacy, 0))

	s := store.NewAlarmStore(kv, "subway-alert:", "dev-1", zap.NewNop())
	resynced := make(chan struct{}, 1)
	s.SetChangeListener(func() {
		select {
		case resynced <- struct{}{}:
		default:
		}
	})

	require.NoError(t, s.Rehydrate(ctx, 10*time.Millisecond))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, float64(store.FixedRadiusM), got.RadiusM)
	assert.NotZero(t, got.CreatedAt)
	require.NotNil(t, got.Location)
	assert.Equal(t, 37.5, got.Location.Lat)

	favs, err := s.Favorites(ctx)
	require.NoError(t, err)
	assert.NotNil(t, favs)

	// 延迟重同步
	select {
	case <-resynced:
	case <-time.After(time.Second):
		t.Fatal("expected delayed resync after rehydrate")
	}
}

func TestAnyEnabled(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.AnyEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	created, err := s.Create(ctx, &models.Alarm{Title: "t"})
	require.NoError(t, err)
	ok, err = s.AnyEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Toggle(ctx, created.ID))
	ok, err = s.AnyEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
