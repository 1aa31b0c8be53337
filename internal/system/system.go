package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/store"

	"go.uber.org/zap"
)

// userBlob 用户级持久化状态（与闹钟集合分开存储）
// 权限/GPS/电池状态按需上报、不落盘；跨重启只保留 onboarded 标志
type userBlob struct {
	Onboarded bool `json:"onboarded"`
}

// Store 进程级系统状态：权限快照、GPS/电池标志、最近一次围栏同步元数据
//
// 前台/后台两个执行上下文都会读写，内部用互斥锁保护。
type Store struct {
	mu sync.Mutex

	kv      store.KVStore
	userKey string
	logger  *zap.Logger

	permission       *models.PermissionSnapshot
	gpsOn            bool
	batteryOptimized bool

	meta        models.GeofenceMeta
	logCapacity int
}

func NewStore(kv store.KVStore, keyPrefix, deviceID string, logCapacity int, logger *zap.Logger) *Store {
	return &Store{
		kv:          kv,
		userKey:     fmt.Sprintf("%s%s:user", keyPrefix, deviceID),
		logger:      logger,
		logCapacity: logCapacity,
		meta:        models.GeofenceMeta{Logs: []string{}},
	}
}

// SetPermission 刷新权限快照（前台切换时由设备端上报）
func (s *Store) SetPermission(snapshot *models.PermissionSnapshot, gpsOn, batteryOptimized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot != nil {
		s.permission = snapshot
	}
	s.gpsOn = gpsOn
	s.batteryOptimized = batteryOptimized
}

// Permission 当前权限快照（可能为 nil：进程启动后尚未收到上报）
func (s *Store) Permission() (*models.PermissionSnapshot, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, s.gpsOn, s.batteryOptimized
}

// BackgroundGeofencingViable 后台围栏是否可用：
// GPS 开启且（iOS "always" 或 Android 前后台定位均授权）
func (s *Store) BackgroundGeofencingViable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permission == nil || !s.gpsOn {
		return false
	}
	if s.permission.IOSLevel == "always" {
		return true
	}
	return s.permission.Android.FG && s.permission.Android.BG
}

// RecordSyncSuccess 记录成功同步的元数据（注册数 + 时刻）
func (s *Store) RecordSyncSuccess(count int, atMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.RegisteredCount = count
	ts := atMs
	s.meta.LastSyncAt = &ts
}

// RecordSyncFailure 记录失败同步的元数据（仅时刻；诊断行由调用方 PushLog）
func (s *Store) RecordSyncFailure(atMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := atMs
	s.meta.LastSyncAt = &ts
}

// PushLog 追加一条诊断日志："[HH:MM:SS] msg"，最新在前，定长截断
func (s *Store) PushLog(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
	s.meta.Logs = append([]string{line}, s.meta.Logs...)
	if len(s.meta.Logs) > s.logCapacity {
		s.meta.Logs = s.meta.Logs[:s.logCapacity]
	}
}

// GeofenceMeta 最近一次同步元数据的副本
func (s *Store) GeofenceMeta() models.GeofenceMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.GeofenceMeta{RegisteredCount: s.meta.RegisteredCount}
	if s.meta.LastSyncAt != nil {
		ts := *s.meta.LastSyncAt
		out.LastSyncAt = &ts
	}
	out.Logs = append([]string{}, s.meta.Logs...)
	return out
}

// Onboarded 读取引导完成标志（用户 blob 缺失时视为未完成）
func (s *Store) Onboarded(ctx context.Context) (bool, error) {
	raw, err := s.kv.Get(ctx, s.userKey)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user state: %w", err)
	}

	var u userBlob
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return false, fmt.Errorf("failed to unmarshal user state: %w", err)
	}
	return u.Onboarded, nil
}

// SetOnboarded 持久化引导完成标志
func (s *Store) SetOnboarded(ctx context.Context, done bool) error {
	data, err := json.Marshal(userBlob{Onboarded: done})
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}
	if err := s.kv.Set(ctx, s.userKey, string(data), 0); err != nil {
		return fmt.Errorf("failed to persist user state: %w", err)
	}
	s.logger.Info("Onboarding flag updated", zap.Bool("onboarded", done))
	return nil
}
