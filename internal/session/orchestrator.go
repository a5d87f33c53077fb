// Package session runs a live rehearsal: it captures the pitch, then
// alternates judge turns and human answers until the session is stopped.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/persona"
	"github.com/ahrav/pitchpanel/internal/ports"
	"github.com/ahrav/pitchpanel/internal/router"
)

// Transcript notices written under the System speaker.
const (
	NoticeNoPitch   = "No pitch captured."
	NoticeLoopError = "An error occurred during the Q&A session."
)

// Phase is the orchestrator's position in the session lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePitchCaptured
	PhaseAwaitingJudge
	PhaseAwaitingHuman
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePitchCaptured:
		return "pitch_captured"
	case PhaseAwaitingJudge:
		return "awaiting_judge"
	case PhaseAwaitingHuman:
		return "awaiting_human"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// FirstSpeaker decides who talks first once Q&A begins.
type FirstSpeaker string

const (
	FirstSpeakerJudge FirstSpeaker = "judge"
	FirstSpeakerHuman FirstSpeaker = "human"
)

// Config tunes judge turns.
type Config struct {
	FirstSpeaker FirstSpeaker
	// Temperature and MaxTokens are passed to every turn completion.
	Temperature float64
	MaxTokens   int
}

// DefaultConfig matches the live panel: the judge opens, replies are
// short and conversational.
func DefaultConfig() Config {
	return Config{FirstSpeaker: FirstSpeakerJudge, Temperature: 0.7, MaxTokens: 400}
}

// Dependencies are the collaborators of an Orchestrator. Voice, Sink and
// Metrics are optional.
type Dependencies struct {
	Registry *persona.Registry
	Selector *router.Selector
	Client   ports.LLMClient
	Capture  ports.SpeechCapture
	Voice    *VoiceDispatcher
	Sink     ports.TranscriptSink
	Metrics  ports.MetricsCollector
}

// Orchestrator owns one rehearsal session. All transcript writes happen
// under mu, and a write is dropped when the session has been stopped or
// restarted since the writer began, so entries from an abandoned loop
// never leak into the next session.
type Orchestrator struct {
	deps  Dependencies
	cfg   Config
	guard *semaphore.Weighted
	now   func() time.Time

	mu          sync.Mutex
	state       domain.SessionState
	phase       Phase
	generation  uint64
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
	startCancel context.CancelFunc
}

// New validates deps and returns an idle orchestrator.
func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: session requires a persona registry", domain.ErrInvalidConfiguration)
	case deps.Selector == nil:
		return nil, fmt.Errorf("%w: session requires a judge selector", domain.ErrInvalidConfiguration)
	case deps.Client == nil:
		return nil, fmt.Errorf("%w: session requires an LLM client", domain.ErrInvalidConfiguration)
	case deps.Capture == nil:
		return nil, fmt.Errorf("%w: session requires speech capture", domain.ErrInvalidConfiguration)
	}
	if _, err := deps.Registry.Lookup(deps.Selector.Default()); err != nil {
		return nil, fmt.Errorf("%w: default judge: %w", domain.ErrInvalidConfiguration, err)
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	switch cfg.FirstSpeaker {
	case "":
		cfg.FirstSpeaker = FirstSpeakerJudge
	case FirstSpeakerJudge, FirstSpeakerHuman:
	default:
		return nil, fmt.Errorf("%w: unknown first speaker %q", domain.ErrInvalidConfiguration, cfg.FirstSpeaker)
	}
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		guard: semaphore.NewWeighted(1),
		now:   time.Now,
	}, nil
}

// Start resets the session and captures the pitch. A running Q&A loop is
// stopped first and utterances queued by the capture are discarded. An
// empty pitch is recorded as a system notice. Start
// blocks until the pitch is captured, ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.Stop()
	if r, ok := o.deps.Capture.(ports.CaptureResetter); ok {
		r.Reset()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.generation++
	gen := o.generation
	o.state.Reset()
	o.state.Active = true
	o.phase = PhaseIdle
	o.startCancel = cancel
	o.mu.Unlock()

	log := clog.FromContext(ctx)
	log.Info("session started, capturing pitch")

	pitch, err := o.deps.Capture.CaptureUtterance(captureCtx)
	if err != nil {
		if captureCtx.Err() != nil {
			o.mu.Lock()
			if o.generation == gen {
				o.state.Active = false
				o.startCancel = nil
			}
			o.mu.Unlock()
			return fmt.Errorf("pitch capture interrupted: %w", captureCtx.Err())
		}
		log.With("error", err).Error("pitch capture failed")
		o.append(gen, domain.SpeakerSystem, NoticeNoPitch)
		o.setPhase(gen, PhasePitchCaptured)
		return fmt.Errorf("capture pitch: %w", err)
	}

	pitch = strings.TrimSpace(pitch)
	if pitch == "" {
		o.append(gen, domain.SpeakerSystem, NoticeNoPitch)
	} else {
		o.append(gen, domain.SpeakerHuman, pitch)
	}
	o.setPhase(gen, PhasePitchCaptured)
	return nil
}

// BeginQnA starts the Q&A loop in the background and returns at once. It
// returns domain.ErrSessionAlreadyActive when a loop is already running
// and domain.ErrPitchNotCaptured while Start is still capturing the pitch.
// The loop outlives ctx's cancellation but keeps its values; Stop ends it.
func (o *Orchestrator) BeginQnA(ctx context.Context) error {
	if !o.guard.TryAcquire(1) {
		return domain.ErrSessionAlreadyActive
	}

	o.mu.Lock()
	if o.phase == PhaseIdle && o.state.Active {
		o.mu.Unlock()
		o.guard.Release(1)
		return domain.ErrPitchNotCaptured
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	gen := o.generation
	o.state.Active = true
	o.state.QnAInProgress = true
	o.phase = PhaseAwaitingJudge
	o.loopCancel = cancel
	o.loopDone = done
	o.mu.Unlock()

	o.deps.Metrics.RecordGauge(ports.MetricQnAActive, 1, nil)
	go o.run(loopCtx, gen, done)
	return nil
}

// Stop ends the session: flags are cleared, any pitch capture or Q&A loop
// is cancelled, and Stop waits for the loop to release its guard so that
// BeginQnA can succeed right after. Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.generation++
	o.state.Active = false
	o.state.QnAInProgress = false
	if o.phase != PhaseIdle {
		o.phase = PhaseEnded
	}
	cancelLoop, done, cancelStart := o.loopCancel, o.loopDone, o.startCancel
	o.loopCancel, o.loopDone, o.startCancel = nil, nil, nil
	o.mu.Unlock()

	if cancelStart != nil {
		cancelStart()
	}
	if cancelLoop != nil {
		cancelLoop()
		<-done
	}
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// State returns a copy of the session flags and transcript.
func (o *Orchestrator) State() domain.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.SessionState{
		Active:        o.state.Active,
		QnAInProgress: o.state.QnAInProgress,
		Transcript:    o.state.Snapshot(),
	}
}

// Transcript returns a copy of the transcript.
func (o *Orchestrator) Transcript() domain.Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Snapshot()
}

// PitchText renders the transcript as evaluation input.
func (o *Orchestrator) PitchText() string {
	return o.Transcript().Render()
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, done chan struct{}) {
	log := clog.FromContext(ctx).With("component", "qna")
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, gen, &domain.UnhandledLoopError{Err: panicError{value: r}})
		}
		o.mu.Lock()
		if o.generation == gen {
			o.state.QnAInProgress = false
			o.state.Active = false
			o.phase = PhaseEnded
			o.loopCancel, o.loopDone = nil, nil
		}
		o.mu.Unlock()
		o.deps.Metrics.RecordGauge(ports.MetricQnAActive, 0, nil)
		o.guard.Release(1)
		close(done)
		log.Info("Q&A loop exited")
	}()

	log.Info("Q&A loop started")
	if o.cfg.FirstSpeaker == FirstSpeakerJudge && o.running(ctx, gen) {
		if err := o.judgeTurn(ctx, gen, persona.StartTrigger); err != nil {
			o.fail(ctx, gen, err)
			return
		}
	}

	for o.running(ctx, gen) {
		o.setPhase(gen, PhaseAwaitingHuman)
		utterance, err := o.deps.Capture.CaptureUtterance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, gen, &domain.UnhandledLoopError{Err: fmt.Errorf("capture utterance: %w", err)})
			return
		}

		utterance = strings.TrimSpace(utterance)
		if utterance == "" {
			continue
		}
		if !o.running(ctx, gen) {
			return
		}
		o.append(gen, domain.SpeakerHuman, utterance)

		if err := o.judgeTurn(ctx, gen, utterance); err != nil {
			o.fail(ctx, gen, err)
			return
		}
	}
}

// judgeTurn answers input with the selected judge and follows at most
// one handoff. The peer's own decision is recorded but never followed.
func (o *Orchestrator) judgeTurn(ctx context.Context, gen uint64, input string) error {
	o.setPhase(gen, PhaseAwaitingJudge)

	sel := o.deps.Selector.Select(ctx, input)
	if sel.Source == "default" {
		o.deps.Metrics.RecordCounter(ports.MetricClassifierFallbacks, 1, nil)
	}

	decision, err := o.invoke(ctx, sel.Persona, input)
	if err != nil || !o.running(ctx, gen) {
		return err
	}
	o.say(gen, sel.Persona, decision.Message)
	o.deps.Metrics.RecordCounter(ports.MetricJudgeTurns, 1, map[string]string{"persona": sel.Persona, "route": decision.Route.String()})

	if !decision.IsHandoff() || decision.Target == sel.Persona {
		return nil
	}

	clog.FromContext(ctx).With("from", sel.Persona, "to", decision.Target).Info("judge handed off turn")
	o.deps.Metrics.RecordCounter(ports.MetricHandoffs, 1, map[string]string{"from": sel.Persona, "to": decision.Target})

	peer, err := o.invoke(ctx, decision.Target, decision.Message)
	if err != nil || !o.running(ctx, gen) {
		return err
	}
	o.say(gen, decision.Target, peer.Message)
	o.deps.Metrics.RecordCounter(ports.MetricJudgeTurns, 1, map[string]string{"persona": decision.Target, "route": peer.Route.String()})
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, name, input string) (domain.RoutingDecision, error) {
	contract, err := o.deps.Registry.Contract(name)
	if err != nil {
		return domain.RoutingDecision{}, &domain.UnhandledLoopError{Err: err}
	}
	prompt, err := contract.TurnPrompt(o.Transcript().Render(), input)
	if err != nil {
		return domain.RoutingDecision{}, &domain.UnhandledLoopError{Err: err}
	}

	raw, err := o.deps.Client.Complete(ctx, prompt, map[string]any{
		"temperature": o.cfg.Temperature,
		"max_tokens":  o.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.RoutingDecision{}, ctx.Err()
		}
		return domain.RoutingDecision{}, &domain.UnhandledLoopError{Err: fmt.Errorf("%s turn: %w", name, err)}
	}
	return router.Parse(raw, o.deps.Registry), nil
}

// fail records err as a system notice unless the loop was stopped.
func (o *Orchestrator) fail(ctx context.Context, gen uint64, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	clog.FromContext(ctx).With("error", err).Error("Q&A loop failed")
	o.deps.Metrics.RecordCounter(ports.MetricLoopErrors, 1, map[string]string{"category": domain.Categorize(err)})
	o.append(gen, domain.SpeakerSystem, NoticeLoopError)
}

// say appends a judge message and hands it to the voice dispatcher.
func (o *Orchestrator) say(gen uint64, name, text string) {
	if !o.append(gen, name, text) || o.deps.Voice == nil {
		return
	}
	contract, err := o.deps.Registry.Contract(name)
	if err != nil {
		return
	}
	o.deps.Voice.Dispatch(name, text, contract.VoiceID())
}

// append writes one entry if gen is still the live generation and
// publishes it while holding the lock so subscribers see transcript order.
func (o *Orchestrator) append(gen uint64, speaker, text string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return false
	}
	e := o.state.Append(speaker, text, o.now())
	o.deps.Metrics.RecordCounter(ports.MetricTranscriptEntries, 1, map[string]string{"speaker_kind": speakerKind(speaker)})
	if o.deps.Sink != nil {
		o.deps.Sink.Publish(e)
	}
	return true
}

func (o *Orchestrator) setPhase(gen uint64, p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation == gen {
		o.phase = p
	}
}

func (o *Orchestrator) running(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen && o.state.Active && o.state.QnAInProgress
}

func speakerKind(speaker string) string {
	switch speaker {
	case domain.SpeakerHuman:
		return "human"
	case domain.SpeakerSystem:
		return "system"
	default:
		return "judge"
	}
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }
