package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler performs the callback a payload describes. It must be safe to
// call more than once for the same task.
type Handler interface {
	HandleJob(ctx context.Context, p Payload) error
}

type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	// Timeout bounds a single tick.
	Timeout time.Duration
	Now     func() time.Time
}

// Dispatcher polls the queue for due tasks and hands them to the handler.
type Dispatcher struct {
	queue   ClaimingQueue
	gateway *Gateway
	handler Handler
	cfg     DispatcherConfig
	log     zerolog.Logger
}

func NewDispatcher(queue ClaimingQueue, gateway *Gateway, handler Handler, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		queue:   queue,
		gateway: gateway,
		handler: handler,
		cfg:     cfg,
		log:     log.With().Str("component", "jobs.dispatcher").Logger(),
	}
}

// Run ticks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().
		Dur("interval", d.cfg.Interval).
		Int("batch_size", d.cfg.BatchSize).
		Int("concurrency", d.cfg.Concurrency).
		Msg("dispatcher started")

	d.runOnce(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return nil
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Dispatcher) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	n, err := d.Tick(runCtx)
	if err != nil {
		d.log.Error().Err(err).Msg("dispatch run failed")
		return
	}
	if n > 0 {
		d.log.Info().Int("tasks", n).Dur("took", time.Since(start)).Msg("dispatch run complete")
	}
}

// Tick claims one batch of due tasks and processes it. It returns the
// number of tasks claimed.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	tasks, err := d.queue.Claim(ctx, d.cfg.Now(), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			d.process(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return len(tasks), nil
}

func (d *Dispatcher) process(ctx context.Context, t Task) {
	log := d.log.With().Str("task_id", t.ID).Logger()

	p, err := Decode(t.Body)
	if err != nil {
		log.Error().Err(err).Msg("dropping undecodable task")
		d.finish(ctx, log, t.ID)
		return
	}

	log = log.With().
		Str("job_kind", string(p.Kind())).
		Str("appointment_id", p.AppointmentID().String()).
		Logger()

	if err := d.handler.HandleJob(ctx, p); err != nil {
		// left in flight; redelivered after the visibility timeout
		log.Warn().Err(err).Msg("job failed")
		return
	}
	d.finish(ctx, log, t.ID)
	log.Debug().Msg("job done")
}

func (d *Dispatcher) finish(ctx context.Context, log zerolog.Logger, taskID string) {
	if err := d.queue.Ack(ctx, taskID); err != nil {
		log.Warn().Err(err).Msg("ack failed")
		return
	}
	if err := d.gateway.Complete(ctx, taskID); err != nil {
		log.Warn().Err(err).Msg("failed to delete job record")
	}
}
