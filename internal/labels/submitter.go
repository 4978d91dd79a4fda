package labels

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
	"github.com/nerrad567/labeldash/internal/session"
)

// Sender is the part of the session a Submitter needs.
// *session.Manager satisfies it.
type Sender interface {
	SendJSONMessage(topic session.Topic, payload map[string]any, opts ...session.PublishOption)
	Dispatch(ctx context.Context, action session.Action) error
}

// Recorder is told about every submitted job, for history and telemetry.
type Recorder interface {
	RecordJob(ctx context.Context, sub Submission) error
}

// Submitter validates print jobs and hands them to the session.
//
// Thread Safety: Submit is safe for concurrent use.
type Submitter struct {
	sender      Sender
	dashboardID string
	prefix      []string
	recorders   []Recorder
	logger      Logger

	now   func() time.Time
	newID func() string
}

// NewSubmitter creates a Submitter.
//
// Parameters:
//   - sender: The session jobs are sent through
//   - dashboardID: Written into every job as "id"
//   - prefix: Topic prefix of the session, used for the recorded topic
//   - logger: Logger instance (may be nil)
//   - recorders: Told about every submitted job; failures are logged
func NewSubmitter(sender Sender, dashboardID string, prefix []string, logger Logger, recorders ...Recorder) *Submitter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Submitter{
		sender:      sender,
		dashboardID: dashboardID,
		prefix:      prefix,
		recorders:   recorders,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Submit validates job and queues it for the printer listener.
//
// Delivery is fire-and-forget: a nil error means the job was accepted by the
// session, which publishes it once connected.
//
// Returns:
//   - Submission: The job with its assigned JobID and the full topic
//   - error: A validation error (ErrNoItems, ErrInvalidItem, ErrInvalidLabelType,
//     ErrInvalidQty, ErrInvalidJob)
func (s *Submitter) Submit(ctx context.Context, job PrintJob) (Submission, error) {
	if job.ID == "" {
		job.ID = s.dashboardID
	}
	if err := ValidateJob(&job); err != nil {
		return Submission{}, err
	}
	job.JobID = s.newID()

	printTopic := mqtt.Topics{}.PrintJobs()
	sub := Submission{
		Job:         job,
		Topic:       mqtt.JoinTopic(s.prefix, printTopic),
		SubmittedAt: s.now().UTC(),
	}

	s.sender.SendJSONMessage(session.Path(printTopic), job.Payload(), session.QoS(1), session.Retained(true))

	if err := s.sender.Dispatch(ctx, JobSubmitted{JobID: job.JobID, Items: len(job.Items), Qty: job.Qty}); err != nil {
		s.logger.Warn("job not applied to state", "job_id", job.JobID, "error", err)
	}
	for _, r := range s.recorders {
		if err := r.RecordJob(ctx, sub); err != nil {
			s.logger.Warn("print job not recorded", "job_id", job.JobID, "error", err)
		}
	}

	s.logger.Info("print job submitted",
		"job_id", job.JobID,
		"topic", sub.Topic,
		"items", len(job.Items),
		"qty", job.Qty,
	)
	return sub, nil
}
