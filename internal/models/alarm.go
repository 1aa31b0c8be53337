package models

// DirKey 上/下行方向键（"up" | "down"）
type DirKey = string

const (
	DirUp   DirKey = "up"
	DirDown DirKey = "down"
)

// 触发类型（进入/离开地理围栏）
const (
	TriggerEnter = "enter"
	TriggerExit  = "exit"
)

// LatLng 规范化后的地理坐标
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LegacyPoint 历史版本的坐标结构（coords/region 字段）
type LegacyPoint struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Alarm 用户定义的地理围栏闹钟
// JSON 字段名与 App 端持久化格式保持一致（兼容历史数据）
type Alarm struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`      // "강남역 2호선 (역삼 방면)"
	RadiusM   float64 `json:"radiusM"`    // 固定 100
	Days      []int   `json:"days"`       // 0~6（周日~周六），空 = 每天
	StartTime string  `json:"startTime"`  // "07:00"
	EndTime   string  `json:"endTime"`    // "09:30"
	Enabled   bool    `json:"enabled"`

	// 地理围栏/方向/调度扩展字段
	Location        *LatLng `json:"location,omitempty"` // 围栏中心（规范化形态）
	Trigger         string  `json:"trigger,omitempty"`  // "enter" | "exit"
	StationAPIName  string  `json:"stationApiName,omitempty"`
	DirKey          DirKey  `json:"dirKey,omitempty"`
	NeighborAPIName string  `json:"neighborApiName,omitempty"`
	CreatedAt       int64   `json:"createdAt"`                 // 创建时刻（ms）
	LastTriggeredAt *int64  `json:"lastTriggeredAt,omitempty"` // 最近触发时刻（ms）— 冷却水位

	// 历史版本的坐标存储形态（写边界统一归一化到 Location）
	Latitude  *float64     `json:"latitude,omitempty"`
	Longitude *float64     `json:"longitude,omitempty"`
	Lat       *float64     `json:"lat,omitempty"`
	Lng       *float64     `json:"lng,omitempty"`
	Coords    *LegacyPoint `json:"coords,omitempty"`
	Region    *LegacyPoint `json:"region,omitempty"`
}

// NormalizeLocation 将历史坐标形态归一化为 Location
// 优先级：latitude/longitude > lat/lng > coords > region > 已有 Location
// 归一化后清空历史字段，保证全部读取方只依赖 Location
func (a *Alarm) NormalizeLocation() {
	if a.Location == nil {
		switch {
		case a.Latitude != nil && a.Longitude != nil:
			a.Location = &LatLng{Lat: *a.Latitude, Lng: *a.Longitude}
		case a.Lat != nil && a.Lng != nil:
			a.Location = &LatLng{Lat: *a.Lat, Lng: *a.Lng}
		case a.Coords != nil && a.Coords.Latitude != nil && a.Coords.Longitude != nil:
			a.Location = &LatLng{Lat: *a.Coords.Latitude, Lng: *a.Coords.Longitude}
		case a.Region != nil && a.Region.Latitude != nil && a.Region.Longitude != nil:
			a.Location = &LatLng{Lat: *a.Region.Latitude, Lng: *a.Region.Longitude}
		}
	}
	a.Latitude = nil
	a.Longitude = nil
	a.Lat = nil
	a.Lng = nil
	a.Coords = nil
	a.Region = nil
}

// Coordinates 返回规范化坐标；缺失时 ok=false（该闹钟不参与围栏注册）
func (a *Alarm) Coordinates() (lat, lng float64, ok bool) {
	if a.Location == nil {
		return 0, 0, false
	}
	return a.Location.Lat, a.Location.Lng, true
}

// HasDirectionFields 方向匹配所需字段是否齐全
func (a *Alarm) HasDirectionFields() bool {
	return a.StationAPIName != "" && a.NeighborAPIName != "" && a.DirKey != ""
}

// Favorite 收藏的"车站+线路+方面"组合（无调度/围栏语义）
type Favorite struct {
	Key         string `json:"key"` // stationId|line|direction（复合键）
	StationID   string `json:"stationId"`
	StationName string `json:"stationName"` // "인덕원역"
	Line        string `json:"line"`        // "4호선"
	Direction   string `json:"direction"`   // "정부과천청사 방면"
}
