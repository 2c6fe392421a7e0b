// Package notify reports a finished job to its owner by email and push event.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

// Directory resolves an owner to their registered email address.
type Directory interface {
	LookupEmail(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// Report records what Notify managed to deliver.
type Report struct {
	TargetEmail string
	EmailSent   bool
	Pushed      bool
	EmailErr    error
	PushErr     error
}

type Notifier struct {
	directory Directory
	mailer    Mailer
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

func NewNotifier(directory Directory, mailer Mailer, publisher Publisher, timeout time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		directory: directory,
		mailer:    mailer,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Notify emails the owner, then publishes the uploadStatus event on the
// owner's channel. The email goes first so the event can say whether it was
// sent. Failures are logged and recorded in the Report, never returned.
func (n *Notifier) Notify(ctx context.Context, job *entity.Job) Report {
	log := common.LoggerFromContext(ctx, n.logger).With("job_id", job.ID, "owner_id", job.OwnerID)
	var rep Report

	rep.TargetEmail, rep.EmailErr = n.lookup(ctx, job.OwnerID)
	if rep.EmailErr != nil {
		log.Warn("owner email lookup failed", "error", rep.EmailErr)
	} else {
		rep.EmailErr = n.sendEmail(ctx, job, rep.TargetEmail)
		if rep.EmailErr != nil {
			log.Warn("email notification failed", "to", rep.TargetEmail, "error", rep.EmailErr)
		} else {
			rep.EmailSent = true
			log.Info("email notification sent", "to", rep.TargetEmail)
		}
	}

	event, err := NewUploadStatus(job, rep.EmailSent, rep.TargetEmail)
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		rep.PushErr = err
		log.Error("push payload invalid", "error", err)
		return rep
	}

	pushCtx, cancel := common.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.publisher.Publish(pushCtx, job.OwnerID.String(), EventUploadStatus, event); err != nil {
		rep.PushErr = err
		log.Warn("push notification failed", "error", err)
		return rep
	}
	rep.Pushed = true
	log.Info("push notification sent", "event", EventUploadStatus, "email_sent", rep.EmailSent)
	return rep
}

func (n *Notifier) lookup(ctx context.Context, ownerID uuid.UUID) (string, error) {
	ctx, cancel := common.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.directory.LookupEmail(ctx, ownerID)
}

func (n *Notifier) sendEmail(ctx context.Context, job *entity.Job, to string) error {
	subject, text, html, err := Render(job)
	if err != nil {
		return err
	}
	ctx, cancel := common.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.mailer.Send(ctx, Email{To: to, Subject: subject, Text: text, HTML: html})
}
