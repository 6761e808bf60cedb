package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTurnInFlight = errors.New("chat: a turn is already in flight")
	ErrEmptyInput   = errors.New("chat: empty input")
	ErrStreamIdle   = errors.New("chat: stream idle")
	ErrClosed       = errors.New("chat: session closed")
)

type EventKind string

const (
	EventStatus  EventKind = "status"
	EventMessage EventKind = "message"
)

// Event is delivered to watchers after every transcript or status change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Status  Status    `json:"status,omitempty"`
	Message *Message  `json:"message,omitempty"`
}

type Option func(*Session)

func WithID(id string) Option { return func(s *Session) { s.id = id } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithIdleTimeout bounds how long a turn may go without receiving bytes.
// Zero disables the watchdog.
func WithIdleTimeout(d time.Duration) Option { return func(s *Session) { s.idleTimeout = d } }

// WithTurnHook registers a callback run after each finished turn.
func WithTurnHook(fn func(Turn)) Option { return func(s *Session) { s.onTurn = fn } }

// Session owns one conversation: its transcript, status and conversation id.
// At most one turn runs at a time.
type Session struct {
	id          string
	transport   Transport
	profileID   string
	logger      *slog.Logger
	now         func() time.Time
	idleTimeout time.Duration
	onTurn      func(Turn)

	mu             sync.Mutex
	transcript     *Transcript
	status         Status
	conversationID string
	lastStamp      int64
	watchers       map[int]func(Event)
	nextWatcher    int
	closed         bool
}

// NewSession creates a session seeded with the welcome message. A nil
// transport, or a *Client without a base URL, leaves the session
// unconfigured: Submit then fails fast with ErrNotConfigured.
func NewSession(t Transport, profileID string, opts ...Option) *Session {
	s := &Session{
		transport: t,
		profileID: profileID,
		logger:    slog.Default(),
		now:       time.Now,
		status:    StatusIdle,
		watchers:  make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if c, ok := t.(*Client); ok && (c == nil || c.BaseURL == "") {
		s.transport = nil
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	s.transcript = NewTranscript(s.now())
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Configured() bool { return s.transport != nil }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// LastActivity is the creation time of the newest transcript message.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.LastActivity()
}

// Watch subscribes fn to session events until the returned func is called.
// fn runs on the goroutine driving the turn and must not block for long.
func (s *Session) Watch(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// close marks an idle session closed so later turns are refused. It reports
// false when a turn is in flight.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return false
	}
	s.closed = true
	return true
}

// Submit runs one turn to completion. It returns ErrEmptyInput,
// ErrNotConfigured, ErrClosed or ErrTurnInFlight without touching the transcript.
// Transport and protocol failures are recorded in the transcript instead of
// being returned.
func (s *Session) Submit(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmptyInput
	}
	if s.transport == nil {
		s.logger.Error("chat endpoint not configured")
		return ErrNotConfigured
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != StatusIdle {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	history := s.transcript.History()
	startedAt, userID := s.stamp("user")
	user := Message{
		ID:             userID,
		Content:        input,
		Author:         AuthorUser,
		CreatedAt:      startedAt,
		ConversationID: s.conversationID,
	}
	s.transcript.Append(user)
	s.status = StatusWaiting
	s.mu.Unlock()
	s.emit(messageEvent(user), statusEvent(StatusWaiting))

	s.logger.Debug("turn started", slog.Int("history", len(history)))

	reply, err := s.run(ctx, Request{
		Message:   input,
		Messages:  history,
		ProfileID: s.profileID,
	})

	turn := Turn{
		SessionID: s.id,
		ProfileID: s.profileID,
		Input:     input,
		Reply:     reply,
		Outcome:   TurnCompleted,
		StartedAt: startedAt,
	}
	if err != nil {
		turn.Outcome = TurnFailed
		turn.Error = err.Error()
		s.logger.Error("chat turn failed", slog.String("error", err.Error()))
	}
	s.finish(&turn, err)

	s.logger.Info("turn finished",
		slog.String("outcome", string(turn.Outcome)),
		slog.Int("reply_len", len(reply)),
		slog.Duration("cost", turn.FinishedAt.Sub(startedAt)))

	if s.onTurn != nil {
		s.onTurn(turn)
	}
	return nil
}

// run streams the response and returns the accumulated assistant text.
func (s *Session) run(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watchdog *idleReader
	if s.idleTimeout > 0 {
		watchdog = newIdleReader(s.idleTimeout, cancel)
		defer watchdog.stop()
	}

	body, err := s.transport.Stream(ctx, req)
	if err != nil {
		if watchdog != nil && watchdog.fired.Load() {
			return "", fmt.Errorf("%w: no response within %s", ErrStreamIdle, s.idleTimeout)
		}
		return "", err
	}
	defer body.Close()

	var r io.Reader = body
	if watchdog != nil {
		watchdog.r = body
		r = watchdog
	}

	// per-turn accumulator; discarded when the turn ends
	var acc strings.Builder
	var aiID string
	for payload, err := range Payloads(r) {
		if err != nil {
			return acc.String(), err
		}
		act, err := Interpret(payload)
		if err != nil {
			s.logger.Warn("skipping malformed payload", slog.String("error", err.Error()))
			continue
		}
		s.apply(act, &acc, &aiID)
		if act.Done {
			break
		}
	}
	return acc.String(), nil
}

func (s *Session) apply(act Action, acc *strings.Builder, aiID *string) {
	var events []Event

	s.mu.Lock()
	if act.ConversationID != "" {
		s.conversationID = act.ConversationID
	}
	if act.Status != "" && act.Status != s.status {
		s.status = act.Status
		events = append(events, statusEvent(act.Status))
	}
	if act.Delta != "" {
		acc.WriteString(act.Delta)
		var at time.Time
		if *aiID == "" {
			at, *aiID = s.stamp("ai")
		}
		m := s.transcript.UpsertOpen(*aiID, acc.String(), at, s.conversationID)
		events = append(events, messageEvent(m))
	}
	s.mu.Unlock()

	s.emit(events...)
}

// finish closes the open message, appends the apology on failure and
// returns the session to idle.
func (s *Session) finish(turn *Turn, err error) {
	var events []Event

	s.mu.Lock()
	s.transcript.CloseOpen()
	if err != nil {
		at, id := s.stamp("error")
		m := Message{
			ID:             id,
			Content:        ApologyContent,
			Author:         AuthorAssistant,
			CreatedAt:      at,
			ConversationID: s.conversationID,
		}
		s.transcript.Append(m)
		events = append(events, messageEvent(m))
	}
	s.status = StatusIdle
	turn.ConversationID = s.conversationID
	turn.FinishedAt = s.now()
	s.mu.Unlock()

	events = append(events, statusEvent(StatusIdle))
	s.emit(events...)
}

// stamp returns a creation time and an id unique within the session.
// Caller must hold s.mu.
func (s *Session) stamp(prefix string) (time.Time, string) {
	at := s.now()
	ms := at.UnixMilli()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	return at, fmt.Sprintf("%s-%d", prefix, ms)
}

func (s *Session) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func statusEvent(st Status) Event { return Event{Kind: EventStatus, Status: st} }

func messageEvent(m Message) Event { return Event{Kind: EventMessage, Message: &m} }

// idleReader cancels the turn when no bytes arrive for d.
type idleReader struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleReader(d time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{d: d}
	ir.timer = time.AfterFunc(d, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && !ir.fired.Load() {
		ir.timer.Reset(ir.d)
	}
	if err != nil && !errors.Is(err, io.EOF) && ir.fired.Load() {
		err = fmt.Errorf("%w: no data for %s", ErrStreamIdle, ir.d)
	}
	return n, err
}

func (ir *idleReader) stop() { ir.timer.Stop() }
