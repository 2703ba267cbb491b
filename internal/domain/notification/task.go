package notification

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeRetryNotification is the asynq task type for retrying a failed
// notification.
const TaskTypeRetryNotification = "notification:retry"

// RetryNotificationPayload is the serialized payload for a retry task.
type RetryNotificationPayload struct {
	NotificationID string `json:"notification_id"`
}

// NewRetryNotificationTask creates a new asynq task for retrying a notification.
func NewRetryNotificationTask(notificationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RetryNotificationPayload{NotificationID: notificationID})
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRetryNotification, payload), nil
}

// ParseRetryNotificationPayload deserializes the task payload.
func ParseRetryNotificationPayload(data []byte) (*RetryNotificationPayload, error) {
	var p RetryNotificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &p, nil
}
