package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

var (
	// ErrGenerating is returned when a conversation already has a
	// generation in flight.
	ErrGenerating = errors.New("conversation is generating")
	// ErrNotFound is returned for unknown conversation or message ids.
	ErrNotFound = errors.New("not found")
	// ErrNothingToRegenerate is returned when the last message is not a
	// model reply.
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("reconciler closed")
)

// Streamer opens a frame stream for a request.
type Streamer interface {
	Open(ctx context.Context, req llm.Request) (iter.Seq2[frame.Frame, error], error)
}

// Titler names a conversation from its first exchange.
type Titler interface {
	Generate(ctx context.Context, userText, modelText string) string
}

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(level Level, msg string)

func (f NotifyFunc) Notify(level Level, msg string) { f(level, msg) }

// Persister receives a snapshot after every change. It must not block.
type Persister interface {
	Persist(conversations []Conversation)
}

// PersistFunc adapts a function to Persister.
type PersistFunc func([]Conversation)

func (f PersistFunc) Persist(conversations []Conversation) { f(conversations) }

// Options configures a Reconciler.
type Options struct {
	Streamer Streamer
	// Titler is optional; without one conversations keep their placeholder.
	Titler   Titler
	Notifier Notifier
	// Persister is only called for a signed-in user after Load.
	Persister Persister
	UserID    string
	// NewTicker overrides the flush ticker, mainly for tests.
	NewTicker func() Ticker
	Logger    zerolog.Logger
}

// cancelToken marks a generation the user no longer wants applied.
type cancelToken struct {
	cancelled atomic.Bool
}

func (t *cancelToken) cancel()         { t.cancelled.Store(true) }
func (t *cancelToken) Cancelled() bool { return t.cancelled.Load() }

// state is owned by the reconciler goroutine; only ops touch it.
type state struct {
	conversations []Conversation
	activeID      string
	tokens        map[string]*cancelToken
	loaded        bool
}

func (s *state) find(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// update replaces the conversation with id by a modified copy.
func (s *state) update(id string, fn func(*Conversation)) bool {
	i := s.find(id)
	if i < 0 {
		return false
	}
	c := s.conversations[i].clone()
	fn(&c)
	next := append([]Conversation(nil), s.conversations...)
	next[i] = c
	s.conversations = next
	return true
}

func (s *state) updateMessage(convID, msgID string, fn func(*Message)) bool {
	found := false
	s.update(convID, func(c *Conversation) {
		if i := c.indexOf(msgID); i >= 0 {
			fn(&c.Messages[i])
			found = true
		}
	})
	return found
}

// finish clears the generating flag when tok is still the conversation's
// current token.
func (s *state) finish(convID string, tok *cancelToken) {
	if s.tokens[convID] != tok {
		return
	}
	delete(s.tokens, convID)
	s.update(convID, func(c *Conversation) { c.Generating = false })
}

// start sets the generating flag and a fresh token together.
func (s *state) start(convID string) *cancelToken {
	tok := &cancelToken{}
	s.tokens[convID] = tok
	s.update(convID, func(c *Conversation) { c.Generating = true })
	return tok
}

func (s *state) snapshot() []Conversation {
	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.clone()
	}
	return out
}

// Reconciler owns the conversation collection. All mutations run as ops on
// a single goroutine; generations stream on their own goroutines and apply
// their results through ops.
type Reconciler struct {
	streamer  Streamer
	titler    Titler
	notifier  Notifier
	persister Persister
	userID    string
	newTicker func() Ticker
	log       zerolog.Logger

	ops  chan func(*state)
	quit chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New starts a reconciler.
func New(opts Options) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		streamer:  opts.Streamer,
		titler:    opts.Titler,
		notifier:  opts.Notifier,
		persister: opts.Persister,
		userID:    opts.UserID,
		newTicker: opts.NewTicker,
		log:       opts.Logger,
		ops:       make(chan func(*state)),
		quit:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	if r.newTicker == nil {
		r.newTicker = func() Ticker { return NewTicker(FlushInterval) }
	}
	if r.notifier == nil {
		r.notifier = NotifyFunc(func(Level, string) {})
	}
	go r.run(&state{tokens: make(map[string]*cancelToken)})
	return r
}

func (r *Reconciler) run(s *state) {
	for {
		select {
		case op := <-r.ops:
			op(s)
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (r *Reconciler) do(fn func(*state)) error {
	done := make(chan struct{})
	op := func(s *state) {
		defer close(done)
		fn(s)
	}
	select {
	case r.ops <- op:
	case <-r.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// changed hands a snapshot to the persister once the initial load is done.
func (r *Reconciler) changed(s *state) {
	if r.persister == nil || r.userID == "" || !s.loaded {
		return
	}
	r.persister.Persist(s.snapshot())
}

// Close stops background work and the owner goroutine. Pending title
// generations are cancelled.
func (r *Reconciler) Close() {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
		close(r.quit)
	})
}

// Wait blocks until in-flight title generations finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Load replaces the collection with previously saved conversations and
// enables persistence.
func (r *Reconciler) Load(conversations []Conversation) error {
	return r.do(func(s *state) {
		s.conversations = make([]Conversation, len(conversations))
		for i, c := range conversations {
			c = c.clone()
			c.Generating = false
			s.conversations[i] = c
		}
		for id, tok := range s.tokens {
			tok.cancel()
			delete(s.tokens, id)
		}
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
		s.loaded = true
	})
}

// Conversations returns a snapshot of the collection, newest first.
func (r *Reconciler) Conversations() []Conversation {
	var out []Conversation
	_ = r.do(func(s *state) { out = s.snapshot() })
	return out
}

// Active returns a snapshot of the active conversation.
func (r *Reconciler) Active() (Conversation, bool) {
	var (
		c  Conversation
		ok bool
	)
	_ = r.do(func(s *state) {
		if i := s.find(s.activeID); i >= 0 {
			c, ok = s.conversations[i].clone(), true
		}
	})
	return c, ok
}

// ensureConversation returns the active conversation, reusing an empty one
// or prepending a new one when needed.
func (s *state) ensureConversation(preferActive bool) string {
	if preferActive {
		if i := s.find(s.activeID); i >= 0 {
			return s.activeID
		}
	} else if i := s.find(s.activeID); i >= 0 && s.conversations[i].Empty() {
		return s.activeID
	}
	for _, c := range s.conversations {
		if c.Empty() {
			s.activeID = c.ID
			return c.ID
		}
	}
	c := newConversation(time.Now())
	s.conversations = append([]Conversation{c}, s.conversations...)
	s.activeID = c.ID
	return c.ID
}

// NewConversation activates an empty conversation and returns its id.
func (r *Reconciler) NewConversation() string {
	var id string
	_ = r.do(func(s *state) {
		id = s.ensureConversation(false)
		r.changed(s)
	})
	return id
}

// Select makes id the active conversation. A stream running for another
// conversation stops updating its text but still finalizes.
func (r *Reconciler) Select(id string) error {
	var err error
	if doErr := r.do(func(s *state) {
		if s.find(id) < 0 {
			err = fmt.Errorf("conversation %s: %w", id, ErrNotFound)
			return
		}
		s.activeID = id
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetModel changes the active conversation's model.
func (r *Reconciler) SetModel(model string) error {
	if _, err := llm.Resolve(model); err != nil {
		return err
	}
	if err := r.updateActive(func(c *Conversation) { c.ModelID = model }); err != nil {
		return err
	}
	r.notifier.Notify(LevelInfo, "Model changed to "+model)
	return nil
}

// SetSystemInstruction overrides the active conversation's system
// instruction. An empty instruction restores the default.
func (r *Reconciler) SetSystemInstruction(instruction string) error {
	if err := r.updateActive(func(c *Conversation) { c.SystemInstruction = instruction }); err != nil {
		return err
	}
	r.notifier.Notify(LevelSuccess, "Instructions updated")
	return nil
}

func (r *Reconciler) updateActive(fn func(*Conversation)) error {
	var err error
	if doErr := r.do(func(s *state) {
		if !s.update(s.activeID, fn) {
			err = fmt.Errorf("active conversation: %w", ErrNotFound)
			return
		}
		r.changed(s)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Delete removes a conversation, abandoning any generation it has running.
func (r *Reconciler) Delete(id string) error {
	var err error
	if doErr := r.do(func(s *state) {
		i := s.find(id)
		if i < 0 {
			err = fmt.Errorf("conversation %s: %w", id, ErrNotFound)
			return
		}
		if tok := s.tokens[id]; tok != nil {
			tok.cancel()
			delete(s.tokens, id)
		}
		s.conversations = append(append([]Conversation(nil), s.conversations[:i]...), s.conversations[i+1:]...)
		if s.activeID == id {
			s.activeID = ""
			if len(s.conversations) > 0 {
				s.activeID = s.conversations[0].ID
			}
		}
		r.changed(s)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Clear removes every conversation.
func (r *Reconciler) Clear() {
	_ = r.do(func(s *state) {
		for id, tok := range s.tokens {
			tok.cancel()
			delete(s.tokens, id)
		}
		s.conversations = []Conversation{}
		s.activeID = ""
		r.changed(s)
	})
}

// Stop abandons the active conversation's generation. Frames still
// arriving are ignored; the network call is left to finish on its own.
func (r *Reconciler) Stop() {
	stopped := false
	_ = r.do(func(s *state) {
		tok := s.tokens[s.activeID]
		if tok == nil {
			return
		}
		tok.cancel()
		delete(s.tokens, s.activeID)
		s.update(s.activeID, func(c *Conversation) { c.Generating = false })
		stopped = true
		r.changed(s)
	})
	if stopped {
		r.notifier.Notify(LevelInfo, "Generation stopped")
	}
}

// generation is one in-flight stream and the message it writes into.
type generation struct {
	convID     string
	msgID      string
	model      string
	system     string
	history    []Message
	prompt     string
	attachment *Attachment
	tok        *cancelToken
	first      bool
}

// begin appends the user message and a placeholder, then starts a
// generation. history excludes the new user message.
func (s *state) begin(convID string, history []Message, user Message) (*generation, error) {
	i := s.find(convID)
	if i < 0 {
		return nil, fmt.Errorf("conversation %s: %w", convID, ErrNotFound)
	}
	conv := s.conversations[i]
	placeholder := newPlaceholder()
	s.update(convID, func(c *Conversation) {
		c.Messages = append(append(append([]Message(nil), history...), user), placeholder)
	})
	return &generation{
		convID:     convID,
		msgID:      placeholder.ID,
		model:      conv.model(),
		system:     conv.SystemInstruction,
		history:    history,
		prompt:     user.Content,
		attachment: user.Attachment,
		tok:        s.start(convID),
		first:      len(history) == 0,
	}, nil
}

// Send appends a user message to the active conversation, creating one if
// needed, and streams the reply into a new model message. It returns once
// the reply is finalized. Generation failures are also written into the
// reply and reported through the Notifier.
func (r *Reconciler) Send(ctx context.Context, text string, att *Attachment) error {
	if strings.TrimSpace(text) == "" && att == nil {
		return nil
	}
	var (
		g   *generation
		err error
	)
	if doErr := r.do(func(s *state) {
		convID := s.ensureConversation(true)
		conv := s.conversations[s.find(convID)]
		if s.tokens[convID] != nil {
			err = ErrGenerating
			return
		}
		g, err = s.begin(convID, conv.Messages, newUserMessage(text, att))
		r.changed(s)
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	return r.generate(ctx, g)
}

// Edit replaces a user message and everything after it with a new message
// carrying the original attachment, then generates a fresh reply.
func (r *Reconciler) Edit(ctx context.Context, messageID, text string) error {
	var (
		g   *generation
		err error
	)
	if doErr := r.do(func(s *state) {
		i := s.find(s.activeID)
		if i < 0 {
			err = fmt.Errorf("active conversation: %w", ErrNotFound)
			return
		}
		conv := s.conversations[i]
		idx := conv.indexOf(messageID)
		if idx < 0 || conv.Messages[idx].Role != llm.RoleUser {
			err = fmt.Errorf("user message %s: %w", messageID, ErrNotFound)
			return
		}
		if s.tokens[conv.ID] != nil {
			err = ErrGenerating
			return
		}
		history := conv.Messages[:idx:idx]
		g, err = s.begin(conv.ID, history, newUserMessage(text, conv.Messages[idx].Attachment))
		r.changed(s)
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	return r.generate(ctx, g)
}

// Regenerate drops the last model reply and generates it again from the
// user message before it.
func (r *Reconciler) Regenerate(ctx context.Context) error {
	var (
		g   *generation
		err error
	)
	if doErr := r.do(func(s *state) {
		i := s.find(s.activeID)
		if i < 0 {
			err = fmt.Errorf("active conversation: %w", ErrNotFound)
			return
		}
		conv := s.conversations[i]
		n := len(conv.Messages)
		if n < 2 || conv.Messages[n-1].Role != llm.RoleModel || conv.Messages[n-2].Role != llm.RoleUser {
			err = ErrNothingToRegenerate
			return
		}
		if s.tokens[conv.ID] != nil {
			err = ErrGenerating
			return
		}
		k := n - 2
		user := conv.Messages[k]
		history := conv.Messages[:k:k]
		g, err = s.begin(conv.ID, history, user)
		r.changed(s)
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	return r.generate(ctx, g)
}

// wanted reports whether frames of g should still be applied.
func (r *Reconciler) wanted(g *generation) bool {
	if g.tok.Cancelled() {
		return false
	}
	ok := false
	_ = r.do(func(s *state) { ok = s.activeID == g.convID })
	return ok
}

func (r *Reconciler) generate(ctx context.Context, g *generation) error {
	log := r.log.With().Str("conversation", g.convID).Str("model", g.model).Logger()
	req := BuildRequest(g.model, g.system, g.history, g.prompt, g.attachment)

	seq, err := r.streamer.Open(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open stream")
		r.fail(g, err)
		return err
	}

	th := newThrottle(r.newTicker(), func(text string) {
		_ = r.do(func(s *state) {
			if s.updateMessage(g.convID, g.msgID, func(m *Message) { m.Content += text }) {
				r.changed(s)
			}
		})
	})

	var (
		reason     frame.FinishReason
		citations  []frame.Citation
		streamErr  error
		suppressed bool
		frames     int
	)
	for f, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		if !r.wanted(g) {
			suppressed = true
			break
		}
		frames++
		th.Add(f.Text)
		// Providers may send usage after the finish frame.
		if f.FinishReason != frame.FinishNone {
			reason = f.FinishReason
		}
		citations = append(citations, f.Citations...)
	}
	th.Close()

	if ctx.Err() != nil {
		suppressed = true
	}
	if streamErr != nil && !suppressed {
		log.Warn().Err(streamErr).Int("frames", frames).Msg("stream failed")
		r.fail(g, streamErr)
		return streamErr
	}

	log.Debug().Int("frames", frames).Str("finish", string(reason)).Bool("suppressed", suppressed).Msg("stream finished")
	r.finalize(g, reason, citations, suppressed)
	return nil
}

// finalize appends the interruption annotation and citations, clears the
// generating flag and triggers title generation for a first exchange.
func (r *Reconciler) finalize(g *generation, reason frame.FinishReason, citations []frame.Citation, suppressed bool) {
	annotation := Annotation(reason)
	unique := DedupCitations(citations)

	var modelText string
	_ = r.do(func(s *state) {
		s.updateMessage(g.convID, g.msgID, func(m *Message) {
			m.Content += annotation
			if len(unique) > 0 {
				m.Citations = unique
			}
			modelText = m.Content
		})
		s.finish(g.convID, g.tok)
		r.changed(s)
	})

	if !g.first || annotation != "" || suppressed || g.tok.Cancelled() || r.titler == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		title := r.titler.Generate(r.ctx, titleUserText(g.prompt, g.attachment), modelText)
		if title == "" {
			return
		}
		_ = r.do(func(s *state) {
			if s.update(g.convID, func(c *Conversation) { c.Title = title }) {
				r.changed(s)
			}
		})
	}()
}

// fail writes err into the placeholder and clears the generating flag.
func (r *Reconciler) fail(g *generation, err error) {
	r.notifier.Notify(LevelError, "Failed to generate a response: "+err.Error())
	_ = r.do(func(s *state) {
		s.updateMessage(g.convID, g.msgID, func(m *Message) { m.Content = errorText(m.Content, err) })
		s.finish(g.convID, g.tok)
		r.changed(s)
	})
}
