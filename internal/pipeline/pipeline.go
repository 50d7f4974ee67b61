// Package pipeline turns one text submission into one or more synthesis
// tasks, dispatches them against the speech gateway, and reconciles each
// task's message record to success or error. Task outcomes flow through a
// channel to a single reconciler goroutine; the message list is only ever
// touched through the session state's keyed updates, so concurrent tasks
// cannot clobber each other.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/speechdesk/speechdesk/internal/gateway"
	"github.com/speechdesk/speechdesk/internal/message"
	"github.com/speechdesk/speechdesk/internal/observability"
	"github.com/speechdesk/speechdesk/internal/pricing"
	"github.com/speechdesk/speechdesk/internal/session"
)

var (
	// ErrNoCredential blocks submission until the user configures an API
	// credential.
	ErrNoCredential = errors.New("no API credential configured")
	// ErrEmptyText reports a submission with nothing synthesizable after
	// splitting.
	ErrEmptyText = errors.New("no synthesizable text in submission")
	// ErrBusy reports that a batch is already in flight.
	ErrBusy = errors.New("generation already in progress")
)

type Synthesizer interface {
	Synthesize(ctx context.Context, req gateway.SynthesizeRequest) ([]byte, error)
}

type Config struct {
	// RetryPronePrefixes designates the model families that retry
	// indefinitely with a fixed delay on transient failure.
	RetryPronePrefixes []string
	RetryDelay         time.Duration
	PricePerMillion    float64
}

type Pipeline struct {
	state   *session.State
	gw      Synthesizer
	metrics *observability.Metrics
	cfg     Config

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
}

func New(state *session.State, gw Synthesizer, metrics *observability.Metrics, cfg Config) *Pipeline {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Pipeline{state: state, gw: gw, metrics: metrics, cfg: cfg}
}

func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Stop requests cooperative cancellation of the in-flight batch. An in-flight
// remote call is not aborted mid-request; cancellation only prevents new
// attempts (including retries) from starting.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

type task struct {
	id   string
	text string
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeError
	outcomeCancelled
)

type outcome struct {
	id       string
	kind     outcomeKind
	audioURL string
	cost     float64
	elapsed  time.Duration
	errMsg   string
}

// Generate submits one batch. Pending records are inserted at the front of
// the message list before any remote call begins, then the batch runs in the
// background; progress is visible through session events. Returns the new
// message ids in segment order.
func (p *Pipeline) Generate(text string) ([]string, error) {
	credential := p.state.Credential()
	if credential == "" {
		return nil, ErrNoCredential
	}

	settings := p.state.Settings()
	segments := Segments(text, settings.SplitEnabled)
	if len(segments) == 0 {
		return nil, ErrEmptyText
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.busy = true
	p.cancel = cancel
	p.mu.Unlock()

	now := time.Now().UTC()
	tasks := make([]task, 0, len(segments))
	batch := make([]message.Message, 0, len(segments))
	ids := make([]string, 0, len(segments))
	for _, segment := range segments {
		id := uuid.NewString()
		tasks = append(tasks, task{id: id, text: segment})
		batch = append(batch, message.Message{
			ID:        id,
			Text:      segment,
			Status:    message.StatusPending,
			CreatedAt: now,
		})
		ids = append(ids, id)
	}
	p.state.PrependPending(batch)

	p.metrics.ActiveBatches.Inc()
	go p.run(ctx, cancel, tasks, settings, credential)
	return ids, nil
}

func (p *Pipeline) run(ctx context.Context, cancel context.CancelFunc, tasks []task, settings session.Settings, credential string) {
	defer func() {
		cancel()
		p.mu.Lock()
		p.busy = false
		p.cancel = nil
		p.mu.Unlock()
		p.metrics.ActiveBatches.Dec()
	}()

	outcomes := make(chan outcome, len(tasks))
	reconciled := make(chan struct{})
	go func() {
		defer close(reconciled)
		for o := range outcomes {
			switch o.kind {
			case outcomeSuccess:
				p.state.ResolveSuccess(o.id, o.audioURL, o.cost, o.elapsed.Milliseconds())
				p.metrics.TasksTotal.WithLabelValues("success").Inc()
			case outcomeError:
				p.state.ResolveError(o.id, o.errMsg)
				p.metrics.TasksTotal.WithLabelValues("error").Inc()
			case outcomeCancelled:
				// Left pending here; swept below so no card dangles.
				p.metrics.TasksTotal.WithLabelValues("cancelled").Inc()
			}
		}
	}()

	if settings.ConcurrentEnabled {
		var wg sync.WaitGroup
		for _, t := range tasks {
			wg.Add(1)
			go func(t task) {
				defer wg.Done()
				outcomes <- p.runTask(ctx, t, settings, credential)
			}(t)
		}
		wg.Wait()
	} else {
		for _, t := range tasks {
			if ctx.Err() != nil {
				outcomes <- outcome{id: t.id, kind: outcomeCancelled}
				continue
			}
			outcomes <- p.runTask(ctx, t, settings, credential)
		}
	}
	close(outcomes)
	<-reconciled

	allIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		allIDs = append(allIDs, t.id)
	}
	if removed := p.state.RemovePending(allIDs); len(removed) > 0 {
		log.Printf("generation stopped, removed %d unresolved task(s)", len(removed))
	}
}

// runTask performs one task's synthesis. Retry-prone models retry
// indefinitely with a fixed delay until success or cancellation; all other
// models get exactly one attempt.
func (p *Pipeline) runTask(ctx context.Context, t task, settings session.Settings, credential string) outcome {
	retryProne := p.isRetryProne(settings.ModelID)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		audio, err := p.gw.Synthesize(ctx, gateway.SynthesizeRequest{
			Text:       t.text,
			Model:      settings.ModelID,
			Voice:      settings.Voice,
			Credential: credential,
		})
		if err == nil {
			elapsed := time.Since(start)
			p.metrics.ObserveSynthesisLatency(elapsed)
			return outcome{
				id:       t.id,
				kind:     outcomeSuccess,
				audioURL: dataURL(audio),
				cost:     pricing.EstimateCost(t.text, p.cfg.PricePerMillion),
				elapsed:  elapsed,
			}
		}

		if ctx.Err() != nil {
			return outcome{id: t.id, kind: outcomeCancelled}
		}

		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			p.metrics.GatewayErrors.WithLabelValues(gwErr.Op, strconv.Itoa(gwErr.Status)).Inc()
		}

		if !retryProne {
			return outcome{id: t.id, kind: outcomeError, errMsg: err.Error()}
		}

		log.Printf("synthesis attempt %d failed, retrying in %s: %v", attempt, p.cfg.RetryDelay, err)
		p.metrics.SynthesisRetries.Inc()
		select {
		case <-ctx.Done():
			return outcome{id: t.id, kind: outcomeCancelled}
		case <-time.After(p.cfg.RetryDelay):
		}
	}
}

func (p *Pipeline) isRetryProne(modelID string) bool {
	for _, prefix := range p.cfg.RetryPronePrefixes {
		if prefix != "" && strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

// dataURL embeds mp3 bytes as a self-contained data URL, persistable and
// replayable after reload.
func dataURL(audio []byte) string {
	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio)
}
