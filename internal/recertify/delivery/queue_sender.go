package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

const (
	// QueueNotifications is the asynq queue notifications are placed on.
	QueueNotifications = "notifications"
	// TaskSendNotification is the asynq task type for one reviewer reminder.
	TaskSendNotification = "recertify:notification:send"
)

// Enqueuer is the subset of *asynq.Client used by QueueSender.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSender hands notifications to an asynq worker instead of delivering
// inline.  Success means the task was accepted by the queue.  The task ID is
// the notification ID, so a re-enqueue of the same payload is rejected by
// asynq rather than duplicated.
type QueueSender struct {
	client   Enqueuer
	maxRetry int
	timeout  time.Duration
}

func NewQueueSender(client Enqueuer) *QueueSender {
	return &QueueSender{client: client, maxRetry: 3, timeout: time.Minute}
}

func (s *QueueSender) Name() string { return "queue" }

func (s *QueueSender) Send(ctx context.Context, n types.Notification) error {
	task, err := NewNotificationTask(n)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(s.timeout),
	}
	if n.ID != "" {
		opts = append(opts, asynq.TaskID(n.ID))
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// NewNotificationTask wraps n into an asynq task.
func NewNotificationTask(n types.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return asynq.NewTask(TaskSendNotification, data), nil
}

// TaskHandler runs on the worker side and forwards dequeued notifications to
// the transport that actually delivers them.
type TaskHandler struct {
	next Sender
}

func NewTaskHandler(next Sender) *TaskHandler {
	return &TaskHandler{next: next}
}

// ProcessTask implements asynq.Handler.  Malformed payloads are not retried.
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n types.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	return h.next.Send(ctx, n)
}

// Register mounts the handler on mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskSendNotification, h)
}
