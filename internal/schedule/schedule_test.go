package schedule

import (
	"testing"
	"time"

	"github.com/junha0101/subway-alert/internal/models"

	"github.com/stretchr/testify/assert"
)

// 2024-01-01 是星期一
func mondayAt(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.Local)
}

func TestIsActiveNow_EmptyDays(t *testing.T) {
	alarm := &models.Alarm{
		Days:      []int{},
		StartTime: "00:00",
		EndTime:   "23:59",
	}

	// days 为空 → 任意星期均通过
	for i := 0; i < 7; i++ {
		now := mondayAt(12, 0).AddDate(0, 0, i)
		assert.True(t, IsActiveNow(alarm, now), "weekday %d", int(now.Weekday()))
	}
}

func TestIsActiveNow_DayMismatch(t *testing.T) {
	alarm := &models.Alarm{
		Days:      []int{0, 6}, // 周日/周六
		StartTime: "00:00",
		EndTime:   "23:59",
	}

	assert.False(t, IsActiveNow(alarm, mondayAt(12, 0)))
	assert.True(t, IsActiveNow(alarm, mondayAt(12, 0).AddDate(0, 0, 6))) // 周日
}

func TestIsActiveNow_TimeWindow(t *testing.T) {
	alarm := &models.Alarm{
		Days:      []int{1},
		StartTime: "07:00",
		EndTime:   "09:30",
	}

	// 窗口内
	assert.True(t, IsActiveNow(alarm, mondayAt(8, 0)))
	// 边界两端闭区间
	assert.True(t, IsActiveNow(alarm, mondayAt(7, 0)))
	assert.True(t, IsActiveNow(alarm, mondayAt(9, 30)))
	// 窗口外
	assert.False(t, IsActiveNow(alarm, mondayAt(6, 59)))
	assert.False(t, IsActiveNow(alarm, mondayAt(9, 31)))
}

func TestIsActiveNow_EmptyTimes(t *testing.T) {
	// 起止时间缺失 → 时间条件视为通过
	alarm := &models.Alarm{Days: []int{1}}
	assert.True(t, IsActiveNow(alarm, mondayAt(3, 0)))
}

func TestIsActiveNow_OvernightWindowAlwaysFalse(t *testing.T) {
	// start > end（意图跨午夜）：维持 App 端行为，恒为 false
	alarm := &models.Alarm{
		Days:      []int{1},
		StartTime: "23:00",
		EndTime:   "01:00",
	}
	assert.False(t, IsActiveNow(alarm, mondayAt(23, 30)))
	assert.False(t, IsActiveNow(alarm, mondayAt(0, 30)))
}

func TestShouldThrottle_Unset(t *testing.T) {
	alarm := &models.Alarm{}
	assert.False(t, ShouldThrottle(alarm, time.Now().UnixMilli()))
}

func TestShouldThrottle_Boundary(t *testing.T) {
	base := int64(1_700_000_000_000)
	alarm := &models.Alarm{LastTriggeredAt: &base}

	// 冷却窗口内
	assert.True(t, ShouldThrottle(alarm, base+1))
	assert.True(t, ShouldThrottle(alarm, base+CooldownMS-1))
	// 恰好到达冷却边界 → 放行
	assert.False(t, ShouldThrottle(alarm, base+CooldownMS))
	assert.False(t, ShouldThrottle(alarm, base+CooldownMS+1))
}
