package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/junha0101/subway-alert/internal/config"
	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/mqtt"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"go.uber.org/zap"
)

// storeCommand UI 侧的存储变更命令
type storeCommand struct {
	Action    string           `json:"action"`
	Alarm     *models.Alarm    `json:"alarm,omitempty"`
	ID        string           `json:"id,omitempty"`
	IDs       []string         `json:"ids,omitempty"`
	Favorite  *models.Favorite `json:"favorite,omitempty"`
	Key       string           `json:"key,omitempty"`
	Phrases   []string         `json:"phrases,omitempty"`
	Onboarded *bool            `json:"onboarded,omitempty"`
}

// CommandConsumer 存储命令消费者（App UI 变更闹钟/收藏状态的入口）
//
// 单条命令失败只记录，不中断消费。未知 action 记录后跳过。
type CommandConsumer struct {
	commandTopic string
	qos          byte

	mqttClient *mqtt.Client
	alarms     *store.AlarmStore
	system     *system.Store
	logger     *zap.Logger
}

// NewCommandConsumer 创建存储命令消费者
func NewCommandConsumer(
	cfg *config.Config,
	deviceID string,
	mqttClient *mqtt.Client,
	alarms *store.AlarmStore,
	systemStore *system.Store,
	logger *zap.Logger,
) *CommandConsumer {
	return &CommandConsumer{
		commandTopic: fmt.Sprintf(cfg.Geofence.Topics.Commands, deviceID),
		qos:          cfg.MQTT.QoS,
		mqttClient:   mqttClient,
		alarms:       alarms,
		system:       systemStore,
		logger:       logger,
	}
}

// Start 启动消费者
func (c *CommandConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.commandTopic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to store commands: %w", err)
	}

	c.logger.Info("Store command consumer started",
		zap.String("topic", c.commandTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *CommandConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.commandTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Store command consumer stopped")
	return nil
}

// handleMessage 处理一条存储命令
func (c *CommandConsumer) handleMessage(topic string, payload []byte) error {
	var cmd storeCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal store command: %w", err)
	}

	ctx := context.Background()

	switch cmd.Action {
	case "create":
		if cmd.Alarm == nil {
			return fmt.Errorf("create command requires an alarm draft")
		}
		created, err := c.alarms.Create(ctx, cmd.Alarm)
		if err != nil {
			return fmt.Errorf("failed to create alarm: %w", err)
		}
		c.logger.Info("Alarm created via command",
			zap.String("alarm_id", created.ID),
		)

	case "toggle":
		if err := c.alarms.Toggle(ctx, cmd.ID); err != nil {
			return fmt.Errorf("failed to toggle alarm %s: %w", cmd.ID, err)
		}

	case "remove":
		if err := c.alarms.Remove(ctx, cmd.ID); err != nil {
			return fmt.Errorf("failed to remove alarm %s: %w", cmd.ID, err)
		}

	case "removeMany":
		if err := c.alarms.RemoveMany(ctx, cmd.IDs); err != nil {
			return fmt.Errorf("failed to remove alarms: %w", err)
		}

	case "favoriteAdd":
		if cmd.Favorite == nil {
			return fmt.Errorf("favoriteAdd command requires a favorite")
		}
		if err := c.alarms.AddFavorite(ctx, *cmd.Favorite); err != nil {
			return fmt.Errorf("failed to add favorite: %w", err)
		}

	case "favoriteRemove":
		if err := c.alarms.RemoveFavorite(ctx, cmd.Key); err != nil {
			return fmt.Errorf("failed to remove favorite: %w", err)
		}

	case "setPhrases":
		if err := c.alarms.SetCustomPhrases(ctx, cmd.Phrases); err != nil {
			return fmt.Errorf("failed to set custom phrases: %w", err)
		}

	case "setOnboarded":
		if cmd.Onboarded == nil {
			return fmt.Errorf("setOnboarded command requires a flag")
		}
		if err := c.system.SetOnboarded(ctx, *cmd.Onboarded); err != nil {
			return fmt.Errorf("failed to set onboarded flag: %w", err)
		}

	default:
		c.logger.Warn("Unknown store command", zap.String("action", cmd.Action))
	}

	return nil
}
