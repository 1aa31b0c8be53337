package schedule

import (
	"fmt"
	"time"

	"github.com/junha0101/subway-alert/internal/models"
)

// CooldownMS 同一闹钟两次触发之间的最小间隔（ms）
const CooldownMS = 5 * 60 * 1000 // 5분

// IsActiveNow 判断闹钟在 now 时刻是否处于激活窗口
// - days 为空：任意星期均通过
// - 时间窗口 [startTime, endTime] 两端闭区间（"HH:MM" 零填充，字典序比较即时序比较）
// - startTime > endTime（跨午夜窗口）恒为 false，维持 App 端行为
func IsActiveNow(alarm *models.Alarm, now time.Time) bool {
	dayOk := len(alarm.Days) == 0
	for _, d := range alarm.Days {
		if d == int(now.Weekday()) {
			dayOk = true
			break
		}
	}
	if !dayOk {
		return false
	}

	t := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
	timeOk := alarm.StartTime == "" || alarm.EndTime == "" ||
		(alarm.StartTime <= t && t <= alarm.EndTime)

	return timeOk
}

// ShouldThrottle 冷却判断：lastTriggeredAt 已设置且距今不足冷却窗口
// 纯谓词，无副作用
func ShouldThrottle(alarm *models.Alarm, nowMs int64) bool {
	return alarm.LastTriggeredAt != nil && nowMs-*alarm.LastTriggeredAt < CooldownMS
}
