package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/junha0101/subway-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerEventsRepository 触发事件历史仓库
type TriggerEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTriggerEventsRepository 创建触发事件仓库
func NewTriggerEventsRepository(db *sql.DB, logger *zap.Logger) *TriggerEventsRepository {
	return &TriggerEventsRepository{
		db:     db,
		logger: logger,
	}
}

// RecordTriggerEvent 记录一次成功派发的通知
func (r *TriggerEventsRepository) RecordTriggerEvent(ctx context.Context, event *models.TriggerEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.AlarmID == "" {
		return fmt.Errorf("alarm_id is required")
	}
	if event.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO trigger_events (
			event_id,
			alarm_id,
			device_id,
			event_type,
			title,
			body,
			arrival_count,
			triggered_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.AlarmID,
		event.DeviceID,
		event.EventType,
		event.Title,
		event.Body,
		event.ArrivalCount,
		event.TriggeredAt,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record trigger event: %w", err)
	}

	return nil
}

// GetRecentTriggerEvents 查询设备最近的触发记录（triggered_at 倒序）
func (r *TriggerEventsRepository) GetRecentTriggerEvents(ctx context.Context, deviceID string, limit int) ([]*models.TriggerEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			event_id,
			alarm_id,
			device_id,
			event_type,
			title,
			body,
			arrival_count,
			triggered_at,
			created_at
		FROM trigger_events
		WHERE device_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger events: %w", err)
	}
	defer rows.Close()

	events := []*models.TriggerEvent{}
	for rows.Next() {
		var event models.TriggerEvent
		err := rows.Scan(
			&event.EventID,
			&event.AlarmID,
			&event.DeviceID,
			&event.EventType,
			&event.Title,
			&event.Body,
			&event.ArrivalCount,
			&event.TriggeredAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger events: %w", err)
	}

	return events, nil
}

// CountTriggerEvents 统计设备在指定时刻之后的触发次数
func (r *TriggerEventsRepository) CountTriggerEvents(ctx context.Context, deviceID string, since time.Time) (int, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT COUNT(*)
		FROM trigger_events
		WHERE device_id = $1
		  AND triggered_at > $2
	`

	var total int
	if err := r.db.QueryRowContext(ctx, query, deviceID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count trigger events: %w", err)
	}

	return total, nil
}
