package geofence

import (
	"encoding/json"
	"fmt"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/mqtt"

	"go.uber.org/zap"
)

// RegionRegistrar 设备端地理围栏引擎的注册接口
//
// StopMonitoring 清空当前监控集合；StartMonitoring 整批注册期望集合。
// 设备端按"期望状态"全量替换，不做增量 diff。
type RegionRegistrar interface {
	StopMonitoring() error
	StartMonitoring(regions []models.Region) error
}

// MQTTRegistrar 通过 retained 消息下发期望监控集合
// 设备端重连后自动收到最新集合；空载荷 = 清空监控
type MQTTRegistrar struct {
	publisher mqtt.Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

func NewMQTTRegistrar(publisher mqtt.Publisher, topic string, qos byte, logger *zap.Logger) *MQTTRegistrar {
	return &MQTTRegistrar{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		logger:    logger,
	}
}

func (r *MQTTRegistrar) StopMonitoring() error {
	if err := r.publisher.Publish(r.topic, r.qos, true, nil); err != nil {
		return fmt.Errorf("failed to clear monitored regions: %w", err)
	}
	return nil
}

func (r *MQTTRegistrar) StartMonitoring(regions []models.Region) error {
	payload, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}
	if err := r.publisher.Publish(r.topic, r.qos, true, payload); err != nil {
		return fmt.Errorf("failed to publish monitored regions: %w", err)
	}
	r.logger.Debug("Published monitored regions",
		zap.String("topic", r.topic),
		zap.Int("count", len(regions)),
	)
	return nil
}
