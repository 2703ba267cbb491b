package queue

import (
	"fmt"
	"time"

	"guardline/internal/domain/notification"

	"github.com/hibiken/asynq"
)

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"retries": 10, // priority weight
				"default": 1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Queue-level backoff for task handler failures; the
				// record's own delivery backoff is handled by the scheduler.
				return time.Duration(30*(1<<uint(n-1))) * time.Second
			},
		},
	)
}

// EnqueueRetryNotification enqueues a notification retry task.
func EnqueueRetryNotification(client *asynq.Client, notificationID string, maxRetry int) error {
	task, err := notification.NewRetryNotificationTask(notificationID)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = client.Enqueue(task,
		asynq.MaxRetry(maxRetry),
		asynq.Queue("retries"),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
