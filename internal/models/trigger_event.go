package models

import "time"

// TriggerEvent 一次成功派发的通知记录（历史留痕，供诊断查询）
type TriggerEvent struct {
	EventID      string    `json:"event_id"`
	AlarmID      string    `json:"alarm_id"`
	DeviceID     string    `json:"device_id"`
	EventType    string    `json:"event_type"` // "enter" | "exit"
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	ArrivalCount int       `json:"arrival_count"`
	TriggeredAt  time.Time `json:"triggered_at"`
	CreatedAt    time.Time `json:"created_at"`
}
