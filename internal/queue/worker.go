package queue

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"xconfess-notify/internal/domain"
	"xconfess-notify/internal/repository"
	"xconfess-notify/pkg/mailer"
	"xconfess-notify/pkg/template"
	"xconfess-notify/pkg/xerrors"
)

// Worker consumes delivery jobs and attempts the email transport. Many
// workers may run concurrently; attempts on a single job stay sequential
// because a leased job is invisible until resolved.
type Worker struct {
	ID        string
	Queue     Queue
	Repo      repository.Repository
	Mailer    mailer.Sender
	Templates *template.Registry
}

func (w *Worker) Run(ctx context.Context) {
	log.Printf("[worker %s] started", w.ID)
	for {
		job, err := w.Queue.Lease(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[worker %s] stopped", w.ID)
				return
			}
			log.Printf("[worker %s] lease error: %v", w.ID, err)
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	err := w.process(ctx, job)
	if err == nil {
		if ackErr := w.Queue.Ack(ctx, job); ackErr != nil {
			log.Printf("[worker %s] ack failed for job %s: %v", w.ID, job.ID, ackErr)
		}
		return
	}

	if job.AttemptsMade >= job.MaxAttempts {
		log.Printf("[worker %s] job %s exhausted after %d attempts: %v", w.ID, job.ID, job.AttemptsMade, err)
		if dlErr := w.Queue.DeadLetter(ctx, job, err.Error()); dlErr != nil {
			log.Printf("[worker %s] dead-letter failed for job %s: %v", w.ID, job.ID, dlErr)
		}
		return
	}

	delay := Backoff(job.AttemptsMade + 1)
	log.Printf("[worker %s] job %s attempt %d failed, retrying in %s: %v", w.ID, job.ID, job.AttemptsMade, delay, err)
	if rErr := w.Queue.RetryWithDelay(ctx, job, delay, err.Error()); rErr != nil {
		log.Printf("[worker %s] retry scheduling failed for job %s: %v", w.ID, job.ID, rErr)
	}
}

// process runs one delivery attempt. A nil return is a terminal success
// (including idempotent and not-eligible short circuits); any error is
// retriable as far as the queue is concerned.
func (w *Worker) process(ctx context.Context, job *Job) error {
	n, err := w.Repo.GetNotificationByID(ctx, job.Payload.NotificationID)
	if errors.Is(err, xerrors.ErrNotFound) {
		// Not transient: the notification is gone, retrying cannot help.
		log.Printf("[worker %s] notification %s not found, dropping job %s", w.ID, job.Payload.NotificationID, job.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if n.IsEmailSent {
		log.Printf("[worker %s] email already sent for notification %s", w.ID, n.ID)
		return nil
	}

	pref, err := w.Repo.GetPreference(ctx, n.UserID)
	if errors.Is(err, xerrors.ErrNotFound) {
		log.Printf("[worker %s] no preference row for user %s, dropping job %s", w.ID, n.UserID, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !pref.EnableEmailNotifications || pref.EmailAddress == "" {
		log.Printf("[worker %s] email disabled for user %s, dropping job %s", w.ID, n.UserID, job.ID)
		return nil
	}
	job.Recipient = pref.EmailAddress

	key := string(n.Kind)
	var policy *template.RolloutPolicy
	if p, ok := w.Templates.Policy(key); ok {
		policy = &p
	}
	version, isCanary := template.ResolveVersion(key, pref.EmailAddress, policy)

	// Unknown key/version surfaces here as an error and rides the same
	// retry path as transport failures, consuming the full budget before
	// dead-lettering. Known gap: configuration errors fail identically
	// on every attempt.
	tpl, err := w.Templates.Lookup(key, version)
	if err != nil {
		return err
	}

	subject, html, _, err := template.Render(tpl, templateVars(n))
	if err != nil {
		return err
	}

	if err := w.Mailer.Send(ctx, pref.EmailAddress, subject, html); err != nil {
		return err
	}

	if err := w.Repo.MarkEmailSent(ctx, n.ID, time.Now()); err != nil {
		return err
	}

	log.Printf("[worker %s] sent notification %s to user %s (template=%s version=%s canary=%t)",
		w.ID, n.ID, n.UserID, key, version, isCanary)
	return nil
}

func templateVars(n *domain.Notification) map[string]string {
	return map[string]string{
		"title":   n.Title,
		"message": n.Message,
		"count":   strconv.Itoa(n.Metadata.MessageCount),
	}
}
