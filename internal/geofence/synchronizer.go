package geofence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/junha0101/subway-alert/internal/metrics"
	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"go.uber.org/zap"
)

// Synchronizer 把当前启用闹钟集合调和到设备端围栏注册状态
//
// 结构性闹钟变更通过 ScheduleResync 合并成一次 Resync（尾沿去抖）：
// 围栏注册是重量级、被限流的操作，用户连续编辑时不应逐次重注册。
type Synchronizer struct {
	alarms    *store.AlarmStore
	system    *system.Store
	registrar RegionRegistrar
	collector *metrics.Collector // 可为 nil（测试环境）
	logger    *zap.Logger

	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewSynchronizer(
	alarms *store.AlarmStore,
	systemStore *system.Store,
	registrar RegionRegistrar,
	debounce time.Duration,
	logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		alarms:    alarms,
		system:    systemStore,
		registrar: registrar,
		debounce:  debounce,
		logger:    logger,
	}
}

// SetCollector 注册指标收集器（装配阶段调用一次）
func (s *Synchronizer) SetCollector(c *metrics.Collector) {
	s.collector = c
}

// RegionsFromAlarms 从闹钟集合导出可注册的围栏区域
// 条件：enabled + 规范化坐标 + 车站/方面/触发类型齐全
// 不满足的闹钟静默排除（保留在集合中供用户修正，不中断注册）
func RegionsFromAlarms(alarms []*models.Alarm) []models.Region {
	var regions []models.Region
	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		lat, lng, ok := a.Coordinates()
		if !ok {
			continue
		}
		if !a.HasDirectionFields() || a.Trigger == "" {
			continue
		}
		regions = append(regions, models.Region{
			Identifier:    models.RegionIdentifierPrefix + a.ID,
			Latitude:      lat,
			Longitude:     lng,
			Radius:        a.RadiusM,
			NotifyOnEnter: a.Trigger == models.TriggerEnter,
			NotifyOnExit:  a.Trigger == models.TriggerExit,
		})
	}
	return regions
}

// Resync 全量调和：清空 → 导出合格集合 → 整批注册 → 记录元数据
// 清空失败只记录（"本来就没在监控"是合法状态）；注册失败向调用方传播
func (s *Synchronizer) Resync(ctx context.Context) error {
	if s.collector != nil {
		s.collector.Resyncs.Inc()
	}

	if err := s.registrar.StopMonitoring(); err != nil {
		s.logger.Debug("Failed to stop monitoring (ignored)", zap.Error(err))
	}

	alarms, err := s.alarms.List(ctx)
	if err != nil {
		s.system.RecordSyncFailure(time.Now().UnixMilli())
		s.system.PushLog(fmt.Sprintf("geofence sync failed: %v", err))
		if s.collector != nil {
			s.collector.ResyncFailures.Inc()
		}
		return fmt.Errorf("failed to list alarms for resync: %w", err)
	}

	regions := RegionsFromAlarms(alarms)
	now := time.Now().UnixMilli()

	if len(regions) == 0 {
		s.system.RecordSyncSuccess(0, now)
		if s.collector != nil {
			s.collector.RegisteredRegions.Set(0)
		}
		s.logger.Info("Geofence resync: no eligible alarms")
		return nil
	}

	if err := s.registrar.StartMonitoring(regions); err != nil {
		s.system.RecordSyncFailure(time.Now().UnixMilli())
		s.system.PushLog(fmt.Sprintf("geofence sync failed: %v", err))
		if s.collector != nil {
			s.collector.ResyncFailures.Inc()
		}
		s.logger.Error("Geofence resync failed", zap.Error(err))
		return err
	}

	s.system.RecordSyncSuccess(len(regions), time.Now().UnixMilli())
	if s.collector != nil {
		s.collector.RegisteredRegions.Set(float64(len(regions)))
	}
	s.system.PushLog(fmt.Sprintf("geofence sync: %d regions registered", len(regions)))
	s.logger.Info("Geofence resync completed", zap.Int("region_count", len(regions)))
	return nil
}

// ScheduleResync 尾沿去抖：窗口内的新变更取消并重排未执行的 Resync
func (s *Synchronizer) ScheduleResync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Resync(context.Background()); err != nil {
			s.logger.Error("Scheduled resync failed", zap.Error(err))
		}
	})
}

// Stop 取消未执行的去抖任务（服务停机时调用）
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
