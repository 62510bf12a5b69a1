package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gowa-blast/internal/helper"
	"gowa-blast/internal/metrics"
	"gowa-blast/internal/model"
	"gowa-blast/internal/ws"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	reasonInvalidRecipient = "not a valid recipient"
	reasonEmptyMessage     = "empty message"
	reasonSessionClosed    = "session closed"
	reasonStopped          = "dispatch stopped"
)

// JobAuditor persists finished jobs. model.AuditLog implements it.
type JobAuditor interface {
	RecordJob(ctx context.Context, r model.JobResult) error
}

type DispatcherConfig struct {
	Registry  *Registry
	Jobs      *JobStore
	Audit     JobAuditor
	Publisher ws.RealtimePublisher
	Metrics   *metrics.Metrics
	Log       zerolog.Logger

	DefaultDelay time.Duration
	MaxDelay     time.Duration
	CountryCode  string
	// Spintax renders {a|b} choices and date variables per recipient.
	Spintax bool
}

// DispatchRequest is one bulk send. Media, when set, is owned by the
// dispatcher from the moment Dispatch is called and released on every path.
type DispatchRequest struct {
	SessionID            string
	Message              string
	Numbers              []string
	PerRecipientMessages []string
	Media                *Media
	// Delay between two recipients; zero means the configured default.
	Delay time.Duration
}

type Ack struct {
	Accepted        bool   `json:"accepted"`
	TotalRecipients int    `json:"totalRecipients"`
	JobID           string `json:"jobId"`
}

// Dispatcher runs bulk sends, one detached goroutine per job. Recipients of
// a job are processed one at a time in input order.
type Dispatcher struct {
	registry  *Registry
	jobs      *JobStore
	audit     JobAuditor
	publisher ws.RealtimePublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger

	defaultDelay time.Duration
	maxDelay     time.Duration
	countryCode  string
	spintax      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Jobs == nil {
		cfg.Jobs = NewJobStore(defaultJobHistory)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = ws.NopPublisher{}
	}
	if cfg.DefaultDelay < 0 {
		cfg.DefaultDelay = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry:     cfg.Registry,
		jobs:         cfg.Jobs,
		audit:        cfg.Audit,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		log:          cfg.Log.With().Str("component", "dispatcher").Logger(),
		defaultDelay: cfg.DefaultDelay,
		maxDelay:     cfg.MaxDelay,
		countryCode:  cfg.CountryCode,
		spintax:      cfg.Spintax,
		ctx:          ctx,
		cancel:       cancel,
		sleep:        sleepContext,
		now:          time.Now,
	}
}

// Dispatch checks the session, takes its dispatch lock, validates the
// request and starts the job in the background. Errors are returned only for
// requests that never started; the lock and media are released in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (Ack, error) {
	if err := ctx.Err(); err != nil {
		d.releaseMedia(req.SessionID, req.Media)
		return Ack{}, err
	}
	lease, err := d.registry.BeginDispatch(req.SessionID)
	if err != nil {
		d.releaseMedia(req.SessionID, req.Media)
		return Ack{}, err
	}

	recipients, err := buildRecipients(req)
	if err != nil {
		d.releaseMedia(req.SessionID, req.Media)
		lease.Release()
		return Ack{}, err
	}

	delay := d.delayFor(req.Delay)
	jobID := uuid.NewString()
	result := model.JobResult{
		JobID:     jobID,
		SessionID: req.SessionID,
		State:     model.JobRunning,
		Total:     len(recipients),
		Failures:  []model.Failure{},
		StartedAt: d.now(),
	}
	d.jobs.Put(result)

	d.log.Info().
		Str("session", req.SessionID).
		Str("job", jobID).
		Int("recipients", len(recipients)).
		Dur("delay", delay).
		Bool("media", req.Media != nil).
		Msg("dispatch started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(&result, lease, recipients, req.Media, delay)
	}()

	return Ack{Accepted: true, TotalRecipients: len(recipients), JobID: jobID}, nil
}

// Job returns the current or final result of a job.
func (d *Dispatcher) Job(jobID string) (model.JobResult, bool) {
	return d.jobs.Get(jobID)
}

// Wait blocks until every running job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops waiting jobs at their next delay and waits for them. Each job
// records its remaining recipients as failures.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) delayFor(requested time.Duration) time.Duration {
	delay := requested
	if delay <= 0 {
		delay = d.defaultDelay
	}
	if d.maxDelay > 0 && delay > d.maxDelay {
		delay = d.maxDelay
	}
	return delay
}

// buildRecipients pairs each number with its message. Missing or blank
// per-recipient messages inherit the shared one; extra messages are dropped.
func buildRecipients(req DispatchRequest) ([]model.Recipient, error) {
	out := make([]model.Recipient, 0, len(req.Numbers))
	for i, raw := range req.Numbers {
		number := strings.TrimSpace(raw)
		if number == "" {
			continue
		}
		msg := req.Message
		if i < len(req.PerRecipientMessages) && strings.TrimSpace(req.PerRecipientMessages[i]) != "" {
			msg = req.PerRecipientMessages[i]
		}
		out = append(out, model.Recipient{Number: number, Message: msg})
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	if strings.TrimSpace(req.Message) == "" && req.Media == nil {
		return nil, ErrEmptyPayload
	}
	return out, nil
}

func (d *Dispatcher) run(result *model.JobResult, lease *Lease, recipients []model.Recipient, media *Media, delay time.Duration) {
	log := d.log.With().Str("session", result.SessionID).Str("job", result.JobID).Logger()
	ctx := d.ctx
	client := lease.Client()
	next := 0

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("dispatch aborted")
			result.State = model.JobAborted
			d.failRemaining(result, recipients, next, fmt.Sprintf("dispatch aborted: %v", rec))
		}
		if mc, ok := client.(MediaCache); ok && media != nil {
			mc.ForgetMedia(media)
		}
		d.releaseMedia(result.SessionID, media)
		lease.Release()
		d.finish(result, log)
	}()

	for next < len(recipients) {
		if next > 0 && delay > 0 {
			if err := d.sleep(ctx, delay); err != nil {
				result.State = model.JobAborted
				d.failRemaining(result, recipients, next, reasonStopped)
				return
			}
		}
		if !lease.Alive() {
			log.Warn().Int("remaining", len(recipients)-next).Msg("session gone, stopping dispatch")
			result.State = model.JobAborted
			d.failRemaining(result, recipients, next, reasonSessionClosed)
			return
		}

		rcpt := recipients[next]
		reason := d.sendOne(ctx, client, rcpt, media)
		next++

		if reason == "" {
			result.Sent++
		} else {
			result.Failed++
			result.Failures = append(result.Failures, model.Failure{Number: rcpt.Number, Reason: reason})
			log.Debug().Str("number", rcpt.Number).Str("reason", reason).Msg("recipient failed")
		}
		d.metrics.DispatchMessage(reason == "")
		d.jobs.Put(*result)
		d.publisher.Publish(ws.WsEvent{
			Event: ws.EventDispatchProgress,
			Data: ws.DispatchProgressData{
				JobID:     result.JobID,
				SessionID: result.SessionID,
				Index:     next,
				Total:     result.Total,
				Number:    rcpt.Number,
				Success:   reason == "",
				Reason:    reason,
			},
		})
		lease.Touch()
	}
	result.State = model.JobFinished
}

// sendOne delivers one message and returns the failure reason, or "" when
// it was sent.
func (d *Dispatcher) sendOne(ctx context.Context, client MessagingClient, rcpt model.Recipient, media *Media) string {
	number := helper.NormalizeNumber(rcpt.Number, d.countryCode)
	if number == "" {
		return reasonInvalidRecipient
	}

	to, err := client.ResolveRecipient(ctx, number)
	if err != nil {
		return err.Error()
	}
	if to == "" {
		return reasonInvalidRecipient
	}

	text := d.render(rcpt.Message)
	switch {
	case media != nil:
		err = client.SendMedia(ctx, to, media, text)
	case strings.TrimSpace(text) != "":
		err = client.SendText(ctx, to, text)
	default:
		return reasonEmptyMessage
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func (d *Dispatcher) render(text string) string {
	if !d.spintax || text == "" {
		return text
	}
	return helper.RenderSpintax(text)
}

func (d *Dispatcher) failRemaining(result *model.JobResult, recipients []model.Recipient, from int, reason string) {
	for _, rcpt := range recipients[from:] {
		result.Failed++
		result.Failures = append(result.Failures, model.Failure{Number: rcpt.Number, Reason: reason})
		d.metrics.DispatchMessage(false)
	}
}

func (d *Dispatcher) finish(result *model.JobResult, log zerolog.Logger) {
	finished := d.now()
	result.FinishedAt = &finished
	if result.State == model.JobRunning {
		result.State = model.JobFinished
	}
	d.jobs.Put(*result)
	d.metrics.DispatchJob(string(result.State))

	if d.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.audit.RecordJob(ctx, result.Clone()); err != nil {
			log.Warn().Err(err).Msg("audit job failed")
		}
		cancel()
	}

	d.publisher.Publish(ws.WsEvent{
		Event: ws.EventDispatchFinished,
		Data:  result.Clone(),
	})
	log.Info().
		Str("state", string(result.State)).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Dur("took", finished.Sub(result.StartedAt)).
		Msg("dispatch finished")
}

func (d *Dispatcher) releaseMedia(sessionID string, media *Media) {
	if err := media.Release(); err != nil {
		d.log.Warn().Err(err).Str("session", sessionID).Msg("remove staged media failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
