package feed

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/junha0101/subway-alert/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// arrivalResponse 首尔实时到站 API 响应
type arrivalResponse struct {
	RealtimeArrivalList []models.RawArrival `json:"realtimeArrivalList"`
}

// Client 首尔实时地铁到站 API 客户端
// DOC: http://swopenapi.seoul.go.kr/api/subway/{KEY}/json/realtimeStationArrival/0/40/{STATION}
type Client struct {
	httpClient *resty.Client
	apiKey     string
	logger     *zap.Logger
}

// NewClient 创建到站信息客户端
// 上游为无认证的纯 HTTP 接口，网络抖动属常态：不重试过猛，失败一律降级为空结果
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// FetchArrivals 查询车站的实时到站记录
// 失败策略：传输错误/非 2xx/畸形响应/缺失 API key 一律返回空列表
// "没有数据"是合法稳态，调用方不需要区分失败原因
func (c *Client) FetchArrivals(ctx context.Context, stationAPIName string) []models.Arrival {
	if c.apiKey == "" {
		c.logger.Warn("Seoul API key is not configured, returning no arrivals")
		return nil
	}

	path := "/" + c.apiKey + "/json/realtimeStationArrival/0/40/" + url.PathEscape(stationAPIName)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(path)

	if err != nil {
		c.logger.Warn("Seoul API request failed",
			zap.String("station", stationAPIName),
			zap.Error(err),
		)
		return nil
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.logger.Warn("Seoul API returned non-success status",
			zap.String("station", stationAPIName),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil
	}

	var parsed arrivalResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		c.logger.Warn("Failed to unmarshal Seoul API response",
			zap.String("station", stationAPIName),
			zap.Error(err),
		)
		return nil
	}

	arrivals := make([]models.Arrival, 0, len(parsed.RealtimeArrivalList))
	for _, r := range parsed.RealtimeArrivalList {
		arrivals = append(arrivals, models.Arrival{
			UpdnLine:     r.UpdnLine,
			TrainLineNm:  r.TrainLineNm,
			BstatnNm:     r.BstatnNm,
			ArvlMsg2:     r.ArvlMsg2,
			ArvlMsg3:     r.ArvlMsg3,
			RecptnDt:     r.RecptnDt,
			StationsAway: ParseStationsAwayFrom(r.ArvlMsg2, r.ArvlMsg3),
		})
	}

	c.logger.Debug("Fetched realtime arrivals",
		zap.String("station", stationAPIName),
		zap.Int("count", len(arrivals)),
	)

	return arrivals
}

// "n정거장 전" / "n번째 전" 文案中的站数提取模式
var (
	stopsAwayPattern   = regexp.MustCompile(`(\d+)\s*정거장\s*전`)
	nthBeforePattern   = regexp.MustCompile(`(\d+)\s*번째\s*전`)
	stationsAwayParser = []*regexp.Regexp{stopsAwayPattern, nthBeforePattern}
)

// ParseStationsAway 从自由文本中提取"还差几站"；无法解析返回 nil，绝不报错
func ParseStationsAway(msg string) *int {
	if msg == "" {
		return nil
	}
	for _, re := range stationsAwayParser {
		if m := re.FindStringSubmatch(msg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}

// ParseStationsAwayFrom 依次尝试多个消息字段
func ParseStationsAwayFrom(msgs ...string) *int {
	for _, msg := range msgs {
		if n := ParseStationsAway(msg); n != nil {
			return n
		}
	}
	return nil
}
