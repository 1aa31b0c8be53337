package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/junha0101/subway-alert/internal/config"
	"github.com/junha0101/subway-alert/internal/feed"
	"github.com/junha0101/subway-alert/internal/metrics"
	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/mqtt"
	"github.com/junha0101/subway-alert/internal/schedule"
	"github.com/junha0101/subway-alert/internal/station"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"go.uber.org/zap"
)

// ArrivalFetcher 到站信息查询（生产实现为 feed.Client）
type ArrivalFetcher interface {
	FetchArrivals(ctx context.Context, stationAPIName string) []models.Arrival
}

// NotificationDispatcher 通知派发（生产实现为 notifier.Dispatcher）
type NotificationDispatcher interface {
	Dispatch(title string, arrivals []models.Arrival, phrases []string) error
}

// TriggerRecorder 触发历史留痕（生产实现为 repository.TriggerEventsRepository）
type TriggerRecorder interface {
	RecordTriggerEvent(ctx context.Context, event *models.TriggerEvent) error
}

// EventConsumer 地理围栏事件消费者（触发管线的入口）
//
// 每次事件严格顺序执行校验链：存在 → 启用 → 触发类型 → 调度窗口 →
// 冷却 → 方向字段，全部通过才查询到站信息并派发通知，最后推进冷却水位。
// 校验链保证"检查先于取数先于水位更新"，单次回调内不会重入。
type EventConsumer struct {
	deviceID    string
	eventsTopic string
	qos         byte

	mqttClient *mqtt.Client
	alarms     *store.AlarmStore
	system     *system.Store
	fetcher    ArrivalFetcher
	dispatcher NotificationDispatcher
	history    TriggerRecorder // 可为 nil（无历史库部署）
	tokens     station.DirectionTokens
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewEventConsumer 创建地理围栏事件消费者
func NewEventConsumer(
	cfg *config.Config,
	deviceID string,
	mqttClient *mqtt.Client,
	alarms *store.AlarmStore,
	systemStore *system.Store,
	fetcher ArrivalFetcher,
	dispatcher NotificationDispatcher,
	history TriggerRecorder,
	tokens station.DirectionTokens,
	collector *metrics.Collector,
	logger *zap.Logger,
) *EventConsumer {
	return &EventConsumer{
		deviceID:    deviceID,
		eventsTopic: fmt.Sprintf(cfg.Geofence.Topics.Events, deviceID),
		qos:         cfg.MQTT.QoS,
		mqttClient:  mqttClient,
		alarms:      alarms,
		system:      systemStore,
		fetcher:     fetcher,
		dispatcher:  dispatcher,
		history:     history,
		tokens:      tokens,
		collector:   collector,
		logger:      logger,
	}
}

// Start 启动消费者
func (c *EventConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.eventsTopic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to geofence events: %w", err)
	}

	c.logger.Info("Geofence event consumer started",
		zap.String("topic", c.eventsTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *EventConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.eventsTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Geofence event consumer stopped")
	return nil
}

// handleMessage 处理一条围栏事件
func (c *EventConsumer) handleMessage(topic string, payload []byte) error {
	c.collector.EventsReceived.Inc()

	// 1. 载荷缺失/畸形/设备端报错 → 终止
	if len(payload) == 0 {
		c.collector.EventsDropped.WithLabelValues("error").Inc()
		return fmt.Errorf("empty geofence event payload")
	}
	var event models.GeofenceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.collector.EventsDropped.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to unmarshal geofence event: %w", err)
	}
	if event.Error != "" {
		c.logger.Warn("Geofence event reported an error",
			zap.String("error", event.Error),
		)
		c.system.PushLog(fmt.Sprintf("geofence event error: %s", event.Error))
		c.collector.EventsDropped.WithLabelValues("error").Inc()
		return nil
	}

	// 2. 非本子系统的围栏标识符 → 忽略
	if !strings.HasPrefix(event.Identifier, models.RegionIdentifierPrefix) {
		c.collector.EventsDropped.WithLabelValues("foreign").Inc()
		return nil
	}
	alarmID := strings.TrimPrefix(event.Identifier, models.RegionIdentifierPrefix)

	ctx := context.Background()

	// 3. 闹钟已被删除但设备端还排着旧事件 → 终止
	alarm, err := c.alarms.Get(ctx, alarmID)
	if err != nil {
		if errors.Is(err, store.ErrAlarmNotFound) {
			c.logger.Info("Geofence event for deleted alarm",
				zap.String("alarm_id", alarmID),
			)
			c.collector.EventsDropped.WithLabelValues("stale").Inc()
			return nil
		}
		c.collector.EventsDropped.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to look up alarm: %w", err)
	}

	// 4. toggle 与 resync 之间的竞争窗口：已禁用则终止
	if !alarm.Enabled {
		c.collector.EventsDropped.WithLabelValues("disabled").Inc()
		return nil
	}

	// 5. 事件类型与配置的触发类型不符 → 终止
	if event.EventType != alarm.Trigger {
		c.collector.EventsDropped.WithLabelValues("kind").Inc()
		return nil
	}

	// 6. 调度窗口
	if !schedule.IsActiveNow(alarm, time.Now()) {
		c.collector.EventsDropped.WithLabelValues("schedule").Inc()
		return nil
	}

	// 7. 冷却：窗口内的重复事件有意合并成一次通知
	nowMs := event.Timestamp
	if nowMs == 0 {
		nowMs = time.Now().UnixMilli()
	}
	if schedule.ShouldThrottle(alarm, nowMs) {
		c.collector.EventsDropped.WithLabelValues("cooldown").Inc()
		return nil
	}

	// 8. 注册时本应排除方向字段缺失的闹钟，这里再校验一次
	if !alarm.HasDirectionFields() {
		c.logger.Warn("Alarm missing direction fields",
			zap.String("alarm_id", alarmID),
		)
		c.collector.EventsDropped.WithLabelValues("fields").Inc()
		return nil
	}

	// 9–12. 取数/派发/留痕/冷却水位：任何失败只记录，绝不让后台任务崩溃
	c.notify(ctx, alarm, event.EventType, nowMs)
	return nil
}

func (c *EventConsumer) notify(ctx context.Context, alarm *models.Alarm, eventType string, nowMs int64) {
	// 9. 查询到站信息；空结果合法，派发降级通知
	arrivals := c.fetcher.FetchArrivals(ctx, alarm.StationAPIName)
	if len(arrivals) == 0 {
		c.collector.FeedFailures.Inc()
	}

	// 10. 方向过滤 + 取前两条
	picked := feed.PickTopTwoForDirection(arrivals, feed.DirectionQuery{
		NeighborAPIName: alarm.NeighborAPIName,
		UpOrDown:        alarm.DirKey,
	}, c.tokens)

	// 11. 派发（自定义鼓励语读不到时回退内置默认）
	phrases, err := c.alarms.CustomPhrases(ctx)
	if err != nil {
		c.logger.Warn("Failed to load custom phrases", zap.Error(err))
		phrases = nil
	}
	if err := c.dispatcher.Dispatch(alarm.Title, picked, phrases); err != nil {
		c.logger.Error("Failed to dispatch notification",
			zap.String("alarm_id", alarm.ID),
			zap.Error(err),
		)
		c.system.PushLog(fmt.Sprintf("notify failed: %s", alarm.Title))
		c.collector.NotificationsFailed.Inc()
		return
	}
	c.collector.NotificationsSent.Inc()
	c.system.PushLog(fmt.Sprintf("notified: %s", alarm.Title))

	if c.history != nil {
		histErr := c.history.RecordTriggerEvent(ctx, &models.TriggerEvent{
			AlarmID:      alarm.ID,
			DeviceID:     c.deviceID,
			EventType:    eventType,
			Title:        alarm.Title,
			ArrivalCount: len(picked),
			TriggeredAt:  time.UnixMilli(nowMs),
		})
		if histErr != nil {
			c.logger.Warn("Failed to record trigger event", zap.Error(histErr))
		}
	}

	// 12. 推进冷却水位
	if err := c.alarms.MarkTriggered(ctx, alarm.ID, nowMs); err != nil {
		c.logger.Error("Failed to mark alarm triggered",
			zap.String("alarm_id", alarm.ID),
			zap.Error(err),
		)
	}
}
