package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/junha0101/subway-alert/internal/config"
	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/mqtt"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"go.uber.org/zap"
)

// Resyncer 围栏重同步入口（生产实现为 geofence.Synchronizer）
type Resyncer interface {
	Resync(ctx context.Context) error
}

// AppStateConsumer 前台重同步触发器
//
// 设备端每次切前台都会上报一次状态；节流吸收快速反复切换。
// 仅当后台围栏可用且至少有一个闹钟启用时才重同步。
// 此消费者的任何失败只记录，绝不向上传播。
type AppStateConsumer struct {
	stateTopic string
	qos        byte
	throttle   time.Duration

	mqttClient *mqtt.Client
	alarms     *store.AlarmStore
	system     *system.Store
	resyncer   Resyncer
	logger     *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewAppStateConsumer 创建前台状态消费者
func NewAppStateConsumer(
	cfg *config.Config,
	deviceID string,
	mqttClient *mqtt.Client,
	alarms *store.AlarmStore,
	systemStore *system.Store,
	resyncer Resyncer,
	logger *zap.Logger,
) *AppStateConsumer {
	return &AppStateConsumer{
		stateTopic: fmt.Sprintf(cfg.Geofence.Topics.AppState, deviceID),
		qos:        cfg.MQTT.QoS,
		throttle:   cfg.AppState.Throttle,
		mqttClient: mqttClient,
		alarms:     alarms,
		system:     systemStore,
		resyncer:   resyncer,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *AppStateConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.stateTopic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to app state: %w", err)
	}

	c.logger.Info("App state consumer started",
		zap.String("topic", c.stateTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *AppStateConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.stateTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("App state consumer stopped")
	return nil
}

// handleMessage 处理一条前台状态上报；永远返回 nil
func (c *AppStateConsumer) handleMessage(topic string, payload []byte) error {
	var report models.AppStateReport
	if err := json.Unmarshal(payload, &report); err != nil {
		c.logger.Warn("Failed to unmarshal app state report", zap.Error(err))
		return nil
	}

	// 每次上报都刷新权限/GPS/电池状态
	c.system.SetPermission(report.Permission, report.GpsOn, report.BatteryOptimized)

	if report.State != "active" {
		return nil
	}

	if !c.shouldRun() {
		return nil
	}

	ctx := context.Background()

	if !c.system.BackgroundGeofencingViable() {
		c.logger.Debug("Skipping foreground resync: background geofencing not viable")
		return nil
	}

	enabled, err := c.alarms.AnyEnabled(ctx)
	if err != nil {
		c.logger.Warn("Failed to check enabled alarms", zap.Error(err))
		return nil
	}
	if !enabled {
		return nil
	}

	if err := c.resyncer.Resync(ctx); err != nil {
		c.logger.Warn("Foreground resync failed", zap.Error(err))
	}
	return nil
}

// shouldRun 节流：间隔内的重复前台切换只放行一次
func (c *AppStateConsumer) shouldRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastRun) < c.throttle {
		return false
	}
	c.lastRun = now
	return true
}
