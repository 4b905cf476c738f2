package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	"github.com/campusbooks/registrar-api/pkg/jobs"
)

// Notification event types.
const (
	NotifyRegistrationSubmitted = "registration.submitted"
	NotifyEnrollmentApproved    = "enrollment.approved"
	NotifyEnrollmentRejected    = "enrollment.rejected"
)

// DecisionNotice is the payload delivered for registration lifecycle events.
type DecisionNotice struct {
	EnrollmentID string                  `json:"enrollment_id"`
	StudentID    string                  `json:"student_id"`
	Status       models.EnrollmentStatus `json:"status"`
	Reason       string                  `json:"reason,omitempty"`
}

// Sender delivers a notice to the outside world (mail, push, chat). Delivery
// transports live outside this service.
type Sender interface {
	Send(ctx context.Context, eventType string, notice DecisionNotice) error
}

// LogSender is the default Sender: it records the notice and does nothing
// else. Real transports are substituted at wiring time.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, eventType string, notice DecisionNotice) error {
	s.Logger.Info("notification dispatched",
		zap.String("event", eventType),
		zap.String("enrollment_id", notice.EnrollmentID),
		zap.String("student_id", notice.StudentID),
		zap.String("status", string(notice.Status)))
	return nil
}

// NotificationService dispatches registration lifecycle notices through the
// background queue. Dispatch happens after commit and is best-effort: a
// failed or dropped notice never affects the settled transaction.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its queue.
func NewNotificationService(sender Sender, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		notice, ok := job.Payload.(DecisionNotice)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return sender.Send(ctx, job.Type, notice)
	}
	return &NotificationService{
		queue:  jobs.NewQueue("notifications", handler, cfg),
		logger: logger,
	}
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notice. Errors are logged, never returned.
func (s *NotificationService) Notify(eventType string, notice DecisionNotice) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: notice,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("event", eventType),
			zap.String("enrollment_id", notice.EnrollmentID),
			zap.Error(err))
	}
}
