package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"callintake_backend/internal/companies"
	"callintake_backend/internal/email"
	"callintake_backend/internal/notification/sms"
	"callintake_backend/platform/config"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker consumes notification tasks and delivers SMS and email. Delivery
// failures are returned to asynq for retry, never surfaced to call handling.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	companies *companies.Repository
	sms       *sms.Client
	email     *email.AlertSender
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, smsClient *sms.Client, alertSender *email.AlertSender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		companies: companies.New(pool),
		sms:       smsClient,
		email:     alertSender,
		log:       log,
	}

	mux.HandleFunc(TaskEmergencyAlert, w.handleEmergencyAlert)
	mux.HandleFunc(TaskBookingConfirmation, w.handleBookingConfirmation)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("notification worker stopped", "error", err)
	}
}

// handleEmergencyAlert texts the on-call technician and mails the alert
// mailbox. The task fails (and retries) only when a configured channel
// cannot deliver.
func (w *Worker) handleEmergencyAlert(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEmergencyAlertPayload(task)
	if err != nil {
		return err
	}

	companyID, err := uuid.Parse(payload.CompanyID)
	if err != nil {
		return err
	}

	company, err := w.companies.GetByID(ctx, companyID)
	if err != nil {
		return err
	}

	var firstErr error

	if w.sms != nil && company.OnCallPhone != "" {
		if err := w.sms.Send(ctx, company.OnCallPhone, emergencySMSText(payload)); err != nil {
			w.log.NotifyFailure("sms", company.OnCallPhone, err)
			firstErr = err
		}
	}

	if w.email != nil && company.AlertEmail != "" {
		if err := w.email.SendEmergencyAlert(ctx, company.AlertEmail, payload.CallID, payload.CallerPhone, payload.MatchedText, payload.Reason, payload.ServiceTypes); err != nil {
			w.log.NotifyFailure("email", company.AlertEmail, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// handleBookingConfirmation texts the customer their confirmed slot.
func (w *Worker) handleBookingConfirmation(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingConfirmationPayload(task)
	if err != nil {
		return err
	}

	if w.sms == nil || payload.CustomerPhone == "" {
		return nil
	}

	start, err := time.Parse(time.RFC3339, payload.StartTime)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Your appointment is confirmed for %s.", start.Format("Monday, January 2 at 3:04 PM"))
	if payload.Fallback {
		text = fmt.Sprintf("We've reserved %s for you and will call if an earlier time opens up.", start.Format("Monday, January 2 at 3:04 PM"))
	}

	if err := w.sms.Send(ctx, payload.CustomerPhone, text); err != nil {
		w.log.NotifyFailure("sms", payload.CustomerPhone, err)
		return err
	}
	return nil
}

func emergencySMSText(payload EmergencyAlertPayload) string {
	var b strings.Builder
	b.WriteString("EMERGENCY call from ")
	b.WriteString(payload.CallerPhone)
	if payload.MatchedText != "" {
		fmt.Fprintf(&b, ": \"%s\"", payload.MatchedText)
	}
	if payload.Reason != "" {
		fmt.Fprintf(&b, " (%s)", payload.Reason)
	}
	if len(payload.ServiceTypes) > 0 {
		fmt.Fprintf(&b, ". Services: %s", strings.Join(payload.ServiceTypes, ", "))
	}
	return b.String()
}
