package models

// RegionIdentifierPrefix 围栏标识符命名空间前缀
// 非此前缀的事件属于其他子系统，处理器直接忽略
const RegionIdentifierPrefix = "alarm:"

// Region 下发给设备端地理围栏引擎的监控区域
type Region struct {
	Identifier    string  `json:"identifier"` // "alarm:{id}"
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Radius        float64 `json:"radius"` // 米
	NotifyOnEnter bool    `json:"notifyOnEnter"`
	NotifyOnExit  bool    `json:"notifyOnExit"`
}

// GeofenceEvent 设备端围栏引擎上报的进入/离开事件
type GeofenceEvent struct {
	Identifier string `json:"identifier"`
	EventType  string `json:"event_type"` // "enter" | "exit"
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"` // ms；缺省时取服务端时刻
}

// PermissionSnapshot 设备端权限快照（按需上报，不持久化）
type PermissionSnapshot struct {
	IOSLevel string      `json:"ios_level"` // "unknown" | "denied" | "whenInUse" | "always"
	Precise  bool        `json:"precise"`
	Android  AndroidPerm `json:"android"`
}

// AndroidPerm Android 前台/后台定位权限
type AndroidPerm struct {
	FG           bool `json:"fg"`
	BG           bool `json:"bg"`
	DontAskAgain bool `json:"dont_ask_again"`
}

// AppStateReport App 生命周期上报（前台切换时携带最新权限状态）
type AppStateReport struct {
	State            string              `json:"state"` // "active" | "background" | "inactive"
	Permission       *PermissionSnapshot `json:"permission,omitempty"`
	GpsOn            bool                `json:"gps_on"`
	BatteryOptimized bool                `json:"battery_optimized"`
	Timestamp        int64               `json:"timestamp,omitempty"`
}

// GeofenceMeta 最近一次同步的元数据（进程内状态）
type GeofenceMeta struct {
	RegisteredCount int      `json:"registered_count"`
	LastSyncAt      *int64   `json:"last_sync_at,omitempty"` // epoch ms
	Logs            []string `json:"logs"`                   // 最新在前，定长环形
}

// Notification 下发给设备端通知桥的本地通知载荷
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Sound    bool   `json:"sound"`
	Priority string `json:"priority"` // "max" 等
}
