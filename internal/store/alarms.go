package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/junha0101/subway-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FixedRadiusM 所有闹钟统一的围栏半径（米）
const FixedRadiusM = 100

// ErrAlarmNotFound 闹钟不存在
var ErrAlarmNotFound = errors.New("alarm not found")

// blob 持久化的完整集合（每次变更整体序列化）
// 无 schema 版本字段，迁移在 Rehydrate 时按需执行
type blob struct {
	Alarms        []*models.Alarm   `json:"alarms"`
	Favorites     []models.Favorite `json:"favorites"`
	CustomPhrases []string          `json:"customPhrases"`
}

// AlarmStore 闹钟/收藏集合的唯一写入方
//
// 持久化后端是 KV 中的单个 JSON blob；每次变更读-改-写整个集合。
// 结构性变更（创建/开关/删除）触发围栏重同步回调，冷却水位更新不触发。
type AlarmStore struct {
	kv       KVStore
	storeKey string
	logger   *zap.Logger

	// 结构性变更监听（围栏同步器的 ScheduleResync）
	changeListener func()
}

func NewAlarmStore(kv KVStore, keyPrefix, deviceID string, logger *zap.Logger) *AlarmStore {
	return &AlarmStore{
		kv:       kv,
		storeKey: fmt.Sprintf("%s%s:store", keyPrefix, deviceID),
		logger:   logger,
	}
}

// SetChangeListener 注册结构性变更回调（装配阶段调用一次）
func (s *AlarmStore) SetChangeListener(fn func()) {
	s.changeListener = fn
}

func (s *AlarmStore) emitChange() {
	if s.changeListener != nil {
		s.changeListener()
	}
}

func (s *AlarmStore) load(ctx context.Context) (*blob, error) {
	raw, err := s.kv.Get(ctx, s.storeKey)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return &blob{}, nil
		}
		return nil, fmt.Errorf("failed to load alarm store: %w", err)
	}

	var b blob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alarm store: %w", err)
	}
	return &b, nil
}

func (s *AlarmStore) save(ctx context.Context, b *blob) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal alarm store: %w", err)
	}
	if err := s.kv.Set(ctx, s.storeKey, string(data), 0); err != nil {
		return fmt.Errorf("failed to persist alarm store: %w", err)
	}
	return nil
}

// Rehydrate 进程启动时的迁移归一化：
// 半径缺失/非法→默认值；createdAt 缺失→当前时刻；坐标归一化；
// favorites/phrases 初始化为空集合。完成后延迟触发一次围栏重同步，
// 使设备端注册状态与恢复的数据对齐。
func (s *AlarmStore) Rehydrate(ctx context.Context, resyncDelay time.Duration) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	nowMs := time.Now().UnixMilli()
	for _, a := range b.Alarms {
		if a.RadiusM <= 0 {
			a.RadiusM = FixedRadiusM
		}
		if a.CreatedAt == 0 {
			a.CreatedAt = nowMs
		}
		a.NormalizeLocation()
	}
	if b.Favorites == nil {
		b.Favorites = []models.Favorite{}
	}
	if b.CustomPhrases == nil {
		b.CustomPhrases = []string{}
	}

	if err := s.save(ctx, b); err != nil {
		return err
	}

	s.logger.Info("Alarm store rehydrated",
		zap.Int("alarm_count", len(b.Alarms)),
		zap.Int("favorite_count", len(b.Favorites)),
	)

	if s.changeListener != nil {
		time.AfterFunc(resyncDelay, s.changeListener)
	}
	return nil
}

// Create 创建闹钟：分配 id、固定半径、createdAt=now、enabled=true、
// 坐标归一化、插入集合头部，并触发重同步
func (s *AlarmStore) Create(ctx context.Context, draft *models.Alarm) (*models.Alarm, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	alarm := *draft
	alarm.ID = uuid.New().String()
	alarm.RadiusM = FixedRadiusM
	alarm.Enabled = true
	alarm.CreatedAt = time.Now().UnixMilli()
	alarm.LastTriggeredAt = nil
	alarm.NormalizeLocation()

	b.Alarms = append([]*models.Alarm{&alarm}, b.Alarms...)
	if err := s.save(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("Alarm created",
		zap.String("alarm_id", alarm.ID),
		zap.String("title", alarm.Title),
	)
	s.emitChange()
	return &alarm, nil
}

// Toggle 翻转 enabled 标志并触发重同步
func (s *AlarmStore) Toggle(ctx context.Context, id string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	for _, a := range b.Alarms {
		if a.ID == id {
			a.Enabled = !a.Enabled
			if err := s.save(ctx, b); err != nil {
				return err
			}
			s.logger.Info("Alarm toggled",
				zap.String("alarm_id", id),
				zap.Bool("enabled", a.Enabled),
			)
			s.emitChange()
			return nil
		}
	}
	return ErrAlarmNotFound
}

// Remove 删除闹钟；id 不存在时为安全 no-op
func (s *AlarmStore) Remove(ctx context.Context, id string) error {
	return s.RemoveMany(ctx, []string{id})
}

// RemoveMany 批量删除；一个都没删到时不落盘也不触发重同步
func (s *AlarmStore) RemoveMany(ctx context.Context, ids []string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := b.Alarms[:0]
	removed := 0
	for _, a := range b.Alarms {
		if drop[a.ID] {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	if removed == 0 {
		return nil
	}
	b.Alarms = kept

	if err := s.save(ctx, b); err != nil {
		return err
	}
	s.logger.Info("Alarms removed", zap.Int("count", removed))
	s.emitChange()
	return nil
}

// MarkTriggered 更新冷却水位；不触发重同步（冷却变更不应引起围栏重注册）
// id 不存在时为安全 no-op（后台事件与前台删除竞争的合法结局）
func (s *AlarmStore) MarkTriggered(ctx context.Context, id string, tsMs int64) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	for _, a := range b.Alarms {
		if a.ID == id {
			ts := tsMs
			a.LastTriggeredAt = &ts
			return s.save(ctx, b)
		}
	}
	return nil
}

// Get 按 id 查询闹钟
func (s *AlarmStore) Get(ctx context.Context, id string) (*models.Alarm, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range b.Alarms {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAlarmNotFound
}

// List 返回全部闹钟（集合头部为最新创建）
func (s *AlarmStore) List(ctx context.Context) ([]*models.Alarm, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.Alarms, nil
}

// AnyEnabled 是否存在启用中的闹钟（前台重同步的先决条件之一）
func (s *AlarmStore) AnyEnabled(ctx context.Context) (bool, error) {
	b, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range b.Alarms {
		if a.Enabled {
			return true, nil
		}
	}
	return false, nil
}

// AddFavorite 收藏为集合语义：key 已存在时静默 no-op
func (s *AlarmStore) AddFavorite(ctx context.Context, fav models.Favorite) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	for _, f := range b.Favorites {
		if f.Key == fav.Key {
			return nil
		}
	}
	b.Favorites = append([]models.Favorite{fav}, b.Favorites...)
	return s.save(ctx, b)
}

// RemoveFavorite 删除收藏；不存在时 no-op
func (s *AlarmStore) RemoveFavorite(ctx context.Context, key string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := b.Favorites[:0]
	removed := false
	for _, f := range b.Favorites {
		if f.Key == key {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	if !removed {
		return nil
	}
	b.Favorites = kept
	return s.save(ctx, b)
}

// ExistsFavorite 收藏键是否已存在
func (s *AlarmStore) ExistsFavorite(ctx context.Context, key string) (bool, error) {
	b, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range b.Favorites {
		if f.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// Favorites 返回全部收藏（最新在前）
func (s *AlarmStore) Favorites(ctx context.Context) ([]models.Favorite, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.Favorites, nil
}

// CustomPhrases 用户自定义鼓励语列表（可为空，派发时回退内置默认）
func (s *AlarmStore) CustomPhrases(ctx context.Context) ([]string, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.CustomPhrases, nil
}

// SetCustomPhrases 整体替换自定义鼓励语
func (s *AlarmStore) SetCustomPhrases(ctx context.Context, phrases []string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}
	if phrases == nil {
		phrases = []string{}
	}
	b.CustomPhrases = phrases
	return s.save(ctx, b)
}
