package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/junha0101/subway-alert/internal/config"
	"github.com/junha0101/subway-alert/internal/consumer"
	"github.com/junha0101/subway-alert/internal/feed"
	"github.com/junha0101/subway-alert/internal/geofence"
	"github.com/junha0101/subway-alert/internal/metrics"
	"github.com/junha0101/subway-alert/internal/mqtt"
	"github.com/junha0101/subway-alert/internal/notifier"
	"github.com/junha0101/subway-alert/internal/repository"
	"github.com/junha0101/subway-alert/internal/station"
	"github.com/junha0101/subway-alert/internal/store"
	"github.com/junha0101/subway-alert/internal/system"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// AlertService 地铁闹钟服务（整合各层）
type AlertService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	metricsSrv  *http.Server
	logger      *zap.Logger
	deviceID    string

	// 各层组件
	alarmStore   *store.AlarmStore
	systemStore  *system.Store
	synchronizer *geofence.Synchronizer
	dispatcher   *notifier.Dispatcher
	directory    *station.Directory
	collector    *metrics.Collector

	eventConsumer    *consumer.EventConsumer
	appStateConsumer *consumer.AppStateConsumer
	commandConsumer  *consumer.CommandConsumer
}

// NewAlertService 创建地铁闹钟服务
func NewAlertService(cfg *config.Config, logger *zap.Logger, deviceID string) (*AlertService, error) {
	// 1. 连接数据库（触发历史留痕）
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis（闹钟/收藏/用户状态的持久化后端）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（设备端双向通道）
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 4. 车站目录
	directory, err := station.LoadDirectory(cfg.Stations.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load station directory: %w", err)
	}

	// 5. 存储层
	kv := store.NewRedisKVStore(redisClient)
	alarmStore := store.NewAlarmStore(kv, cfg.Store.KeyPrefix, deviceID, logger)
	systemStore := system.NewStore(kv, cfg.Store.KeyPrefix, deviceID, cfg.Geofence.LogCapacity, logger)
	historyRepo := repository.NewTriggerEventsRepository(db, logger)

	// 6. 围栏同步器（结构性闹钟变更 → 去抖 resync）
	regionsTopic := fmt.Sprintf(cfg.Geofence.Topics.Regions, deviceID)
	registrar := geofence.NewMQTTRegistrar(mqttClient, regionsTopic, cfg.MQTT.QoS, logger)
	synchronizer := geofence.NewSynchronizer(alarmStore, systemStore, registrar, cfg.Geofence.DebounceDelay, logger)
	alarmStore.SetChangeListener(synchronizer.ScheduleResync)

	// 7. 到站查询 + 通知派发
	feedClient := feed.NewClient(cfg.Seoul.BaseURL, cfg.Seoul.APIKey, cfg.Seoul.Timeout, logger)
	dispatcher := notifier.NewDispatcher(
		mqttClient,
		fmt.Sprintf(cfg.Notify.PushTopic, deviceID),
		fmt.Sprintf(cfg.Notify.ChannelTopic, deviceID),
		cfg.MQTT.QoS,
		logger,
	)

	// 8. 指标
	collector := metrics.NewCollector()
	synchronizer.SetCollector(collector)

	// 9. 消费者层
	tokens := station.DirectionTokens{
		Up:   cfg.Stations.UpTokens,
		Down: cfg.Stations.DownTokens,
	}
	eventConsumer := consumer.NewEventConsumer(cfg, deviceID, mqttClient,
		alarmStore, systemStore, feedClient, dispatcher, historyRepo,
		tokens, collector, logger)
	appStateConsumer := consumer.NewAppStateConsumer(cfg, deviceID, mqttClient,
		alarmStore, systemStore, synchronizer, logger)
	commandConsumer := consumer.NewCommandConsumer(cfg, deviceID, mqttClient,
		alarmStore, systemStore, logger)

	return &AlertService{
		config:           cfg,
		db:               db,
		redisClient:      redisClient,
		mqttClient:       mqttClient,
		logger:           logger,
		deviceID:         deviceID,
		alarmStore:       alarmStore,
		systemStore:      systemStore,
		synchronizer:     synchronizer,
		dispatcher:       dispatcher,
		directory:        directory,
		collector:        collector,
		eventConsumer:    eventConsumer,
		appStateConsumer: appStateConsumer,
		commandConsumer:  commandConsumer,
	}, nil
}

// Start 启动服务
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting subway alert service",
		zap.String("device_id", s.deviceID),
		zap.Int("station_count", len(s.directory.All())),
	)

	// 通知通道初始化（失败不致命）
	s.dispatcher.Init()

	// 启动恢复：迁移归一化 + 延迟一次 resync 对齐设备端注册状态
	if err := s.alarmStore.Rehydrate(ctx, s.config.Geofence.RehydrateDelay); err != nil {
		return fmt.Errorf("failed to rehydrate alarm store: %w", err)
	}

	if s.config.Metrics.Addr != "" {
		s.metricsSrv = s.collector.Serve(s.config.Metrics.Addr, s.logger)
	}

	errChan := make(chan error, 3)
	go func() { errChan <- s.eventConsumer.Start(ctx) }()
	go func() { errChan <- s.appStateConsumer.Start(ctx) }()
	go func() { errChan <- s.commandConsumer.Start(ctx) }()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("consumer failed: %w", err)
		}
	case <-ctx.Done():
	}
	return nil
}

// Stop 停止服务
func (s *AlertService) Stop() error {
	s.logger.Info("Stopping subway alert service")

	ctx := context.Background()
	if err := s.eventConsumer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop event consumer", zap.Error(err))
	}
	if err := s.appStateConsumer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop app state consumer", zap.Error(err))
	}
	if err := s.commandConsumer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop command consumer", zap.Error(err))
	}

	s.synchronizer.Stop()

	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down metrics server", zap.Error(err))
		}
	}

	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
