package playback

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Rate and volume bounds.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinVolume = 0
	MaxVolume = 100

	DefaultSkip         = 10 * time.Second
	DefaultTickInterval = 250 * time.Millisecond
)

// Event types published to subscribers.
const (
	EventState    = "state"
	EventPosition = "position"
	EventCaption  = "caption"
)

// Event is a session change notification.
type Event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	ID              string   `json:"id"`
	Title           string   `json:"title,omitempty"`
	State           State    `json:"state"`
	Sentences       []string `json:"sentences"`
	Index           int      `json:"index"`
	Caption         string   `json:"caption"`
	PositionSeconds float64  `json:"position_seconds"`
	DurationSeconds float64  `json:"duration_seconds"`
	Rate            float64  `json:"rate"`
	Volume          int      `json:"volume"`
	Extending       bool     `json:"extending"`
	Error           string   `json:"error,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the wall clock used for position tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTickInterval sets how often a playing session publishes position.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithSkip sets the skip forward/back interval.
func WithSkip(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.skip = d
		}
	}
}

// Session is one playback session. It owns at most one buffer and at most
// one ticker goroutine at a time. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	title     string
	state     State
	sentences []string
	index     int
	buf       *Buffer
	pool      *BufferPool
	duration  time.Duration
	rate      float64
	volume    int
	extending bool
	err       error
	closed    bool

	// Position is anchorPos plus elapsed wall time since anchorAt times rate
	// while playing, and anchorPos otherwise.
	anchorPos time.Duration
	anchorAt  time.Time

	stopTick chan struct{}
	tickDone chan struct{}

	subs   map[int]chan Event
	nextID int

	now  func() time.Time
	tick time.Duration
	skip time.Duration
}

// NewSession creates an idle session drawing buffers from pool.
func NewSession(id string, pool *BufferPool, opts ...Option) *Session {
	s := &Session{
		id:     id,
		state:  StateIdle,
		pool:   pool,
		rate:   1.0,
		volume: MaxVolume,
		subs:   make(map[int]chan Event),
		now:    time.Now,
		tick:   DefaultTickInterval,
		skip:   DefaultSkip,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	pos := s.positionLocked()
	idx := CaptionIndex(pos, s.duration, len(s.sentences))
	snap := Snapshot{
		ID:              s.id,
		Title:           s.title,
		State:           s.state,
		Sentences:       append([]string{}, s.sentences...),
		Index:           idx,
		PositionSeconds: pos.Seconds(),
		DurationSeconds: s.duration.Seconds(),
		Rate:            s.rate,
		Volume:          s.volume,
		Extending:       s.extending,
	}
	if idx < len(s.sentences) {
		snap.Caption = s.sentences[idx]
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Position returns the current playback position.
func (s *Session) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Session) positionLocked() time.Duration {
	pos := s.anchorPos
	if s.state == StatePlaying {
		elapsed := s.now().Sub(s.anchorAt)
		pos += time.Duration(float64(elapsed) * s.rate)
	}
	return max(0, min(pos, s.duration))
}

// reanchor freezes the current position as the new anchor and syncs the
// caption index to it.
func (s *Session) reanchorLocked() {
	s.anchorPos = s.positionLocked()
	s.anchorAt = s.now()
	s.index = CaptionIndex(s.anchorPos, s.duration, len(s.sentences))
}

// transition moves to state to and publishes it. Caller holds mu.
func (s *Session) transitionLocked(to State) error {
	if s.closed {
		return ErrClosed
	}
	if err := checkTransition(s.state, to); err != nil {
		return err
	}
	s.state = to
	s.publishLocked(EventState)
	return nil
}

// BeginScript moves an idle session into script generation.
func (s *Session) BeginScript(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(StateScriptGenerating); err != nil {
		return err
	}
	s.title = title
	s.err = nil
	return nil
}

// BeginSynthesis records the caption sentences and moves to synthesis.
func (s *Session) BeginSynthesis(title string, sentences []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := checkTransition(s.state, StateAudioSynthesizing); err != nil {
		return err
	}
	if title != "" {
		s.title = title
	}
	s.sentences = append([]string{}, sentences...)
	s.index = 0
	return s.transitionLocked(StateAudioSynthesizing)
}

// Load takes ownership of decoded audio and moves to Ready.
func (s *Session) Load(data []byte, mime string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := checkTransition(s.state, StateReady); err != nil {
		return err
	}
	s.swapBufferLocked(data, mime, duration)
	s.anchorPos = 0
	s.anchorAt = s.now()
	s.index = 0
	return s.transitionLocked(StateReady)
}

// swapBufferLocked releases the current buffer before acquiring the next.
func (s *Session) swapBufferLocked(data []byte, mime string, duration time.Duration) {
	s.pool.Release(s.buf)
	s.buf = s.pool.Acquire(data, mime, duration)
	s.duration = duration
}

// Fail records err and moves to Error, releasing any buffer.
func (s *Session) Fail(err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if terr := checkTransition(s.state, StateError); terr != nil {
		s.mu.Unlock()
		return terr
	}
	s.err = err
	wait := s.stopTickerLocked()
	s.pool.Release(s.buf)
	s.buf = nil
	terr := s.transitionLocked(StateError)
	s.mu.Unlock()
	wait()
	return terr
}

// Reset returns the session to Idle, releasing its buffer.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	wait := s.stopTickerLocked()
	s.pool.Release(s.buf)
	s.buf = nil
	s.sentences = nil
	s.index = 0
	s.duration = 0
	s.anchorPos = 0
	s.err = nil
	s.extending = false
	err := s.transitionLocked(StateIdle)
	s.mu.Unlock()
	wait()
	return err
}

// Play starts or resumes playback. Playing from Ended restarts at zero.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == StatePlaying {
		return nil
	}
	if err := checkTransition(s.state, StatePlaying); err != nil {
		return err
	}
	if s.state == StateEnded || s.anchorPos >= s.duration {
		s.anchorPos = 0
		s.index = 0
	}
	s.anchorAt = s.now()
	if err := s.transitionLocked(StatePlaying); err != nil {
		return err
	}
	s.startTickerLocked()
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StatePaused {
		s.mu.Unlock()
		return nil
	}
	if err := checkTransition(s.state, StatePaused); err != nil {
		s.mu.Unlock()
		return err
	}
	s.reanchorLocked()
	wait := s.stopTickerLocked()
	err := s.transitionLocked(StatePaused)
	s.mu.Unlock()
	wait()
	return err
}

// Toggle switches between playing and paused.
func (s *Session) Toggle() error {
	if s.State() == StatePlaying {
		return s.Pause()
	}
	return s.Play()
}

// Seek moves to an absolute position, clamped to [0, duration]. The caption
// index is updated in the same critical section. Seeking does not change
// play/pause state except that seeking away from the end of an ended
// session pauses it and seeking to the end of a playing one ends it.
func (s *Session) Seek(pos time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !hasAudio(s.state) {
		s.mu.Unlock()
		return ErrNoAudio
	}

	pos = max(0, min(pos, s.duration))
	s.anchorPos = pos
	s.anchorAt = s.now()
	s.index = CaptionIndex(pos, s.duration, len(s.sentences))

	wait := func() {}
	var err error
	switch {
	case s.state == StatePlaying && pos >= s.duration:
		wait = s.stopTickerLocked()
		err = s.transitionLocked(StateEnded)
	case s.state == StateEnded && pos < s.duration:
		err = s.transitionLocked(StatePaused)
	default:
		s.publishLocked(EventPosition)
	}
	s.mu.Unlock()
	wait()
	return err
}

// SeekFraction seeks to fraction f of the duration. f is clamped to [0, 1].
func (s *Session) SeekFraction(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrInvalidPosition
	}
	s.mu.Lock()
	d := s.duration
	s.mu.Unlock()
	f = max(0, min(f, 1))
	return s.Seek(time.Duration(f * float64(d)))
}

// SeekSeconds seeks to an absolute position in seconds. Values beyond the
// range of time.Duration are clamped before conversion.
func (s *Session) SeekSeconds(secs float64) error {
	d, err := DurationFromSeconds(secs)
	if err != nil {
		return err
	}
	return s.Seek(d)
}

// SkipSeconds seeks by secs relative to the current position.
func (s *Session) SkipSeconds(secs float64) error {
	d, err := DurationFromSeconds(secs)
	if err != nil {
		return err
	}
	return s.Skip(d)
}

// DurationFromSeconds converts secs to a Duration, saturating at the
// Duration range. NaN and infinities are rejected.
func DurationFromSeconds(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, ErrInvalidPosition
	}
	ns := secs * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64), nil
	}
	if ns <= float64(math.MinInt64) {
		return time.Duration(math.MinInt64), nil
	}
	return time.Duration(ns), nil
}

// Skip seeks by delta relative to the current position.
func (s *Session) Skip(delta time.Duration) error {
	pos := s.Position()
	if delta > 0 && pos > math.MaxInt64-delta {
		return s.Seek(time.Duration(math.MaxInt64))
	}
	return s.Seek(pos + delta)
}

// SkipForward seeks forward by the skip interval.
func (s *Session) SkipForward() error { return s.Skip(s.skip) }

// SkipBack seeks back by the skip interval.
func (s *Session) SkipBack() error { return s.Skip(-s.skip) }

// SetRate sets the playback rate, clamped to [MinRate, MaxRate].
func (s *Session) SetRate(rate float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reanchorLocked()
	s.rate = max(MinRate, min(rate, MaxRate))
	s.publishLocked(EventState)
	return s.rate
}

// SetVolume sets the volume, clamped to [MinVolume, MaxVolume].
func (s *Session) SetVolume(v int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = max(MinVolume, min(v, MaxVolume))
	s.publishLocked(EventState)
	return s.volume
}

// SetExtending flags an in-flight extension.
func (s *Session) SetExtending(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extending = on
	s.publishLocked(EventState)
}

// Extend swaps in longer audio covering sentences, preserving position.
func (s *Session) Extend(sentences []string, data []byte, mime string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !hasAudio(s.state) {
		return ErrNoAudio
	}

	pos := s.positionLocked()
	s.swapBufferLocked(data, mime, duration)
	s.sentences = append([]string{}, sentences...)
	s.anchorPos = min(pos, duration)
	s.anchorAt = s.now()
	s.index = CaptionIndex(s.anchorPos, duration, len(s.sentences))
	s.extending = false

	if s.state == StateEnded && s.anchorPos < duration {
		return s.transitionLocked(StatePaused)
	}
	s.publishLocked(EventState)
	return nil
}

// Audio returns the loaded audio bytes and MIME type.
func (s *Session) Audio() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil || s.buf.Released() {
		return nil, "", ErrNoAudio
	}
	return s.buf.Data(), s.buf.MIME(), nil
}

// Close pauses playback, stops the ticker, releases the buffer and ends
// all subscriptions. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StatePlaying {
		s.reanchorLocked()
		s.state = StatePaused
	}
	wait := s.stopTickerLocked()
	s.pool.Release(s.buf)
	s.buf = nil
	s.state = StateIdle
	s.publishLocked(EventState)
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	wait()
}

// Subscribe returns a channel of session events and a cancel func.
// Slow subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 16)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Session) publishLocked(typ string) {
	if len(s.subs) == 0 {
		return
	}
	ev := Event{Type: typ, Snapshot: s.snapshotLocked()}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// startTickerLocked starts the position ticker. Caller holds mu.
func (s *Session) startTickerLocked() {
	if s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopTick = stop
	s.tickDone = done
	go s.run(stop, done)
}

// stopTickerLocked signals the ticker to stop and returns a func that
// waits for it to exit. The wait must run after mu is released.
func (s *Session) stopTickerLocked() func() {
	if s.stopTick == nil {
		return func() {}
	}
	close(s.stopTick)
	done := s.tickDone
	s.stopTick = nil
	s.tickDone = nil
	return func() { <-done }
}

func (s *Session) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(s.tick)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if !s.advance(stop) {
				return
			}
		}
	}
}

// advance publishes position and caption changes and ends the session at
// the end of the audio. It returns false when the ticker should exit.
func (s *Session) advance(stop <-chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopTick != stop || s.state != StatePlaying {
		return false
	}

	pos := s.positionLocked()
	if idx := CaptionIndex(pos, s.duration, len(s.sentences)); idx != s.index {
		s.index = idx
		s.publishLocked(EventCaption)
	}

	if pos >= s.duration {
		s.anchorPos = s.duration
		s.stopTick = nil
		s.tickDone = nil
		s.state = StateEnded
		s.publishLocked(EventState)
		return false
	}
	s.publishLocked(EventPosition)
	return true
}

// String implements fmt.Stringer for logging.
func (s *Session) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("session %s (%s %.1fs/%.1fs)", snap.ID, snap.State, snap.PositionSeconds, snap.DurationSeconds)
}
