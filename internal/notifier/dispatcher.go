package notifier

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/mqtt"

	"go.uber.org/zap"
)

// defaultPhrases 用户未配置自定义鼓励语时的内置列表
var defaultPhrases = []string{
	"빨리 달리세요!",
	"지금 뛰면 안놓친다",
	"지금 놓치면 너 지각 확정",
}

// ChannelConfig 设备端通知通道的默认配置（Android 需要显式建通道）
type ChannelConfig struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Importance           string `json:"importance"`
	VibrationPattern     []int  `json:"vibration_pattern"`
	LightColor           string `json:"light_color"`
	LockscreenVisibility string `json:"lockscreen_visibility"`
}

// Dispatcher 即时通知派发器（fire-and-forget）
type Dispatcher struct {
	publisher    mqtt.Publisher
	pushTopic    string
	channelTopic string
	qos          byte
	logger       *zap.Logger
}

func NewDispatcher(publisher mqtt.Publisher, pushTopic, channelTopic string, qos byte, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		publisher:    publisher,
		pushTopic:    pushTopic,
		channelTopic: channelTopic,
		qos:          qos,
		logger:       logger,
	}
}

// Init 进程启动时调用一次：下发默认通知通道配置（retained）
// 失败只记录，不致命——后续派发仍会尝试，可能在设备端静默丢弃
func (d *Dispatcher) Init() {
	cfg := ChannelConfig{
		ID:                   "default",
		Name:                 "기본 알림",
		Importance:           "max",
		VibrationPattern:     []int{0, 250, 250, 250},
		LightColor:           "#5A4DFF",
		LockscreenVisibility: "public",
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		d.logger.Warn("Failed to marshal notification channel config", zap.Error(err))
		return
	}
	if err := d.publisher.Publish(d.channelTopic, d.qos, true, payload); err != nil {
		d.logger.Warn("Failed to publish notification channel config", zap.Error(err))
		return
	}
	d.logger.Info("Notification channel configured", zap.String("topic", d.channelTopic))
}

// Dispatch 派发一条即时到站通知：
// 每条到站一行（"· N 정류장 전"，站数未知为 "?"），无数据时 "· 도착 정보 없음"，
// 末尾追加一条随机鼓励语（自定义列表为空时用内置默认）
func (d *Dispatcher) Dispatch(title string, arrivals []models.Arrival, phrases []string) error {
	notification := models.Notification{
		Title:    fmt.Sprintf("[알림] %s", title),
		Body:     buildBody(arrivals, pickPhrase(phrases)),
		Sound:    true,
		Priority: "max",
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := d.publisher.Publish(d.pushTopic, d.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	d.logger.Info("Notification dispatched",
		zap.String("title", notification.Title),
		zap.Int("arrival_count", len(arrivals)),
	)
	return nil
}

func buildBody(arrivals []models.Arrival, phrase string) string {
	var lines []string
	if len(arrivals) == 0 {
		lines = append(lines, "· 도착 정보 없음")
	} else {
		for i, a := range arrivals {
			if i >= 2 {
				break
			}
			lines = append(lines, fmt.Sprintf("· %s 정류장 전", stationsAwayText(a)))
		}
	}
	lines = append(lines, phrase)
	return strings.Join(lines, "\n")
}

func stationsAwayText(a models.Arrival) string {
	if a.StationsAway == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *a.StationsAway)
}

func pickPhrase(phrases []string) string {
	list := phrases
	if len(list) == 0 {
		list = defaultPhrases
	}
	return list[rand.Intn(len(list))]
}
