package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 地铁闹钟服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 首尔实时到站 API
	Seoul struct {
		BaseURL string // http://swopenapi.seoul.go.kr/api/subway
		APIKey  string // 缺失时客户端降级为空结果（记录警告，不报错）
		Timeout time.Duration
	}

	// 地理围栏/触发管线配置
	Geofence struct {
		DebounceDelay  time.Duration // 结构性变更 → resync 的尾沿去抖
		RehydrateDelay time.Duration // 启动恢复后的首次 resync 延迟
		DefaultRadiusM float64       // 固定监控半径（米）
		LogCapacity    int           // 诊断日志环形缓冲容量

		// MQTT 主题（%s = device id）
		Topics struct {
			Events   string // 订阅：geofence/{device}/events
			Regions  string // 发布（retained）：geofence/{device}/regions
			AppState string // 订阅：app/{device}/state
			Commands string // 订阅：store/{device}/commands
		}
	}

	// 通知下发配置
	Notify struct {
		PushTopic    string // notify/{device}/push
		ChannelTopic string // notify/{device}/channel（retained）
	}

	// 前台 resync 触发节流间隔
	AppState struct {
		Throttle time.Duration
	}

	// 车站数据集（2호선/4호선）
	Stations struct {
		Path string
		// 方向文本 → up/down 键的映射表（首尔地铁专用 token）
		UpTokens   []string
		DownTokens []string
	}

	Store struct {
		KeyPrefix string // "subway-alert:"
	}

	Metrics struct {
		Addr string // 空 = 不启动 /metrics
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env + 环境变量，带默认值）
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "subwayalert")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "subway-alert")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Seoul.BaseURL = getEnv("SEOUL_API_BASE", "http://swopenapi.seoul.go.kr/api/subway")
	cfg.Seoul.APIKey = getEnv("SEOUL_API_KEY", "")
	cfg.Seoul.Timeout = 10 * time.Second

	cfg.Geofence.DebounceDelay = 400 * time.Millisecond
	cfg.Geofence.RehydrateDelay = 1 * time.Second
	cfg.Geofence.DefaultRadiusM = 100
	cfg.Geofence.LogCapacity = 10
	cfg.Geofence.Topics.Events = getEnv("TOPIC_GEOFENCE_EVENTS", "geofence/%s/events")
	cfg.Geofence.Topics.Regions = getEnv("TOPIC_GEOFENCE_REGIONS", "geofence/%s/regions")
	cfg.Geofence.Topics.AppState = getEnv("TOPIC_APP_STATE", "app/%s/state")
	cfg.Geofence.Topics.Commands = getEnv("TOPIC_STORE_COMMANDS", "store/%s/commands")

	cfg.Notify.PushTopic = getEnv("TOPIC_NOTIFY_PUSH", "notify/%s/push")
	cfg.Notify.ChannelTopic = getEnv("TOPIC_NOTIFY_CHANNEL", "notify/%s/channel")

	cfg.AppState.Throttle = 1500 * time.Millisecond

	cfg.Stations.Path = getEnv("STATIONS_PATH", "assets/stations_line2_line4.json")
	cfg.Stations.UpTokens = []string{"상행", "내선"}
	cfg.Stations.DownTokens = []string{"하행", "외선"}

	cfg.Store.KeyPrefix = getEnv("STORE_KEY_PREFIX", "subway-alert:")

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
