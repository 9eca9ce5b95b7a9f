// Package podcast runs podcast playback sessions: script generation, speech
// synthesis, autoplay and extension, with one live session per owner.
package podcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/store"
	"github.com/raphaelgruber/portal-go/internal/tts"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("podcast session not found")
	// ErrSuperseded is returned when a newer Open replaced the session mid-operation.
	ErrSuperseded = errors.New("podcast session superseded")
	// ErrExtendInProgress is returned when an extension is already running.
	ErrExtendInProgress = errors.New("extension already in progress")
)

// Invoker runs one prompt request.
type Invoker interface {
	Invoke(ctx context.Context, req models.PromptRequest) (*models.InferenceResult, error)
}

// Options wires a Service.
type Options struct {
	Composer    *prompt.Composer
	Invoker     Invoker
	Synthesizer tts.Synthesizer
	// Episodes persists finished scripts; nil disables persistence.
	Episodes store.Store[*models.Episode]
	Pool     *playback.BufferPool
	Logger   *slog.Logger
	Metrics  *metrics.Collector

	AutoplayDelay  time.Duration
	SessionOptions []playback.Option
}

// OpenRequest starts a new episode for Owner.
type OpenRequest struct {
	Owner     string `json:"owner"`
	Topic     string `json:"topic"`
	Voice     string `json:"voice,omitempty"`
	Sentences int    `json:"sentences,omitempty"`
}

type entry struct {
	session *playback.Session
	owner   string
	topic   string
	voice   string
	gen     uint64

	ctx    context.Context
	cancel context.CancelFunc

	extending sync.Mutex

	mu      sync.Mutex
	lastErr error
}

func (e *entry) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *entry) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Service owns every podcast session.
type Service struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*entry
	owners  map[string]string
	gens    map[string]uint64

	wg sync.WaitGroup
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pool == nil {
		opts.Pool = playback.NewBufferPool(opts.Metrics)
	}
	if opts.Composer == nil {
		opts.Composer = prompt.NewComposer(config.DefaultCatalog())
	}
	return &Service{
		opts:    opts,
		entries: make(map[string]*entry),
		owners:  make(map[string]string),
		gens:    make(map[string]uint64),
	}
}

// Pool returns the buffer pool shared by all sessions.
func (s *Service) Pool() *playback.BufferPool { return s.opts.Pool }

// Open tears down the owner's current session and starts a new one.
// Script generation and synthesis continue in the background; the
// returned session reports progress through its state.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*playback.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner := req.Owner
	if owner == "" {
		owner = "default"
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = s.opts.Composer.Catalog().Podcast.DefaultTopic
	}

	id := uuid.New().String()[:8]
	sessionCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		session: playback.NewSession(id, s.opts.Pool, s.opts.SessionOptions...),
		owner:   owner,
		topic:   topic,
		voice:   req.Voice,
		ctx:     sessionCtx,
		cancel:  cancel,
	}

	s.mu.Lock()
	s.gens[owner]++
	e.gen = s.gens[owner]
	old := s.entries[s.owners[owner]]
	if old != nil {
		delete(s.entries, old.session.ID())
	}
	s.entries[id] = e
	s.owners[owner] = id
	s.mu.Unlock()

	if old != nil {
		s.teardown(old)
		s.opts.Logger.Info("replaced podcast session", "owner", owner, "old", old.session.ID(), "new", id)
	}
	s.opts.Metrics.AddGauge(metrics.GaugeActiveSessions, 1)

	if err := e.session.BeginScript(topic); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.generate(e, req.Sentences)
	}()
	return e.session, nil
}

func (s *Service) teardown(e *entry) {
	e.cancel()
	e.session.Close()
	s.opts.Metrics.AddGauge(metrics.GaugeActiveSessions, -1)
}

// current reports whether e is still its owner's newest live session.
func (s *Service) current(e *entry) bool {
	if e.ctx.Err() != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[e.owner] == e.gen
}

func (s *Service) generate(e *entry, sentences int) {
	log := s.opts.Logger.With("session", e.session.ID(), "topic", e.topic)
	start := time.Now()

	view, err := s.script(e.ctx, s.opts.Composer.EpisodeScript(e.topic, sentences), e.topic)
	if err != nil {
		s.fail(e, log, "script generation failed", err)
		return
	}
	if !s.current(e) {
		return
	}
	if err := e.session.BeginSynthesis(view.Title, view.Sentences); err != nil {
		return
	}

	audio, err := s.synthesize(e.ctx, view.Sentences, e.voice)
	if err != nil {
		s.fail(e, log, "speech synthesis failed", err)
		return
	}
	// A newer Open may have finished while we were synthesizing.
	if !s.current(e) {
		log.Debug("discarding stale audio")
		return
	}
	if err := e.session.Load(audio.Data, audio.MIME, audio.Duration); err != nil {
		return
	}
	log.Info("episode ready", "sentences", len(view.Sentences), "duration", audio.Duration, "elapsed", time.Since(start))

	s.persist(e, view, audio.Duration, log)

	select {
	case <-time.After(s.opts.AutoplayDelay):
	case <-e.ctx.Done():
		return
	}
	if s.current(e) && e.session.State() == playback.StateReady {
		if err := e.session.Play(); err != nil {
			log.Debug("autoplay skipped", "error", err)
		}
	}
}

func (s *Service) fail(e *entry, log *slog.Logger, msg string, err error) {
	if !s.current(e) {
		return
	}
	e.setErr(err)
	log.Warn(msg, "error", err, "kind", llm.KindOf(err))
	_ = e.session.Fail(err)
}

// script generates and renders one script request.
func (s *Service) script(ctx context.Context, req models.PromptRequest, fallbackTitle string) (render.EpisodeScriptView, error) {
	res, err := s.opts.Invoker.Invoke(ctx, req)
	if err != nil {
		return render.EpisodeScriptView{}, err
	}
	view := render.EpisodeScript(render.FromResult(res), fallbackTitle)
	if view.Empty {
		return view, &llm.Error{Kind: llm.KindMalformed, Err: errors.New("script has no sentences")}
	}
	return view, nil
}

// synthesize voices the sentences and decodes the audio. A duration the
// headers cannot reveal is estimated from the text.
func (s *Service) synthesize(ctx context.Context, sentences []string, voice string) (*tts.Audio, error) {
	text := strings.Join(sentences, " ")
	b64, err := s.opts.Synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	audio, err := tts.Decode(b64)
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindMalformed, Err: fmt.Errorf("decode audio: %w", err)}
	}
	if audio.Duration <= 0 {
		audio.Duration = tts.EstimateDuration(text)
	}
	return audio, nil
}

func (s *Service) persist(e *entry, view render.EpisodeScriptView, d time.Duration, log *slog.Logger) {
	if s.opts.Episodes == nil {
		return
	}
	ep := &models.Episode{
		Title:           view.Title,
		Topic:           e.topic,
		Sentences:       view.Sentences,
		Voice:           e.voice,
		DurationSeconds: d.Seconds(),
	}
	if _, err := s.opts.Episodes.Create(e.ctx, ep); err != nil {
		log.Warn("failed to save episode", "error", err)
	}
}

// Extend appends n sentences to the session's script and swaps in audio
// for the longer script without moving the playhead. It runs until the
// continuation is loaded or ctx ends.
func (s *Service) Extend(ctx context.Context, id string, n int) (playback.Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return playback.Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return e.session.Snapshot(), err
	}
	if !e.extending.TryLock() {
		return e.session.Snapshot(), ErrExtendInProgress
	}
	defer e.extending.Unlock()

	snap := e.session.Snapshot()
	if snap.State != playback.StateReady && snap.State != playback.StatePlaying &&
		snap.State != playback.StatePaused && snap.State != playback.StateEnded {
		return snap, playback.ErrNoAudio
	}

	// Bound the work by both the request and the session lifetime.
	xctx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	e.session.SetExtending(true)
	log := s.opts.Logger.With("session", id, "topic", e.topic)

	snapshot, err := s.extend(xctx, e, snap, n)
	if err != nil {
		e.session.SetExtending(false)
		if errors.Is(err, context.Canceled) && e.ctx.Err() != nil {
			err = ErrSuperseded
		}
		e.setErr(err)
		log.Warn("extend failed", "error", err)
		return e.session.Snapshot(), err
	}
	log.Info("episode extended", "sentences", len(snapshot.Sentences), "duration_seconds", snapshot.DurationSeconds)
	return snapshot, nil
}

func (s *Service) extend(ctx context.Context, e *entry, snap playback.Snapshot, n int) (playback.Snapshot, error) {
	req := s.opts.Composer.EpisodeContinuation(snap.Title, snap.Sentences, n)
	more, err := s.script(ctx, req, snap.Title)
	if err != nil {
		return snap, err
	}

	all := append(append([]string{}, snap.Sentences...), more.Sentences...)
	audio, err := s.synthesize(ctx, all, e.voice)
	if err != nil {
		return snap, err
	}
	if !s.current(e) {
		return snap, ErrSuperseded
	}
	if err := e.session.Extend(all, audio.Data, audio.MIME, audio.Duration); err != nil {
		return snap, err
	}
	e.setErr(nil)
	return e.session.Snapshot(), nil
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// Get returns the session with id.
func (s *Service) Get(id string) (*playback.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// LastError returns the most recent generation or extension failure of
// the session, or nil.
func (s *Service) LastError(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.err()
}

// Topic returns the topic the session was opened with.
func (s *Service) Topic(id string) (string, error) {
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return e.topic, nil
}

// Close tears down the session with id.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
		if s.owners[e.owner] == id {
			delete(s.owners, e.owner)
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.teardown(e)
	return nil
}

// Len returns the number of open sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Shutdown closes every session and waits for background work to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for id, e := range s.entries {
		entries = append(entries, e)
		delete(s.entries, id)
	}
	clear(s.owners)
	s.mu.Unlock()

	for _, e := range entries {
		s.teardown(e)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
