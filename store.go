package wetalk

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last local keystroke a
// stopped-typing signal is emitted.
const DefaultTypingIdle = 2000 * time.Millisecond

// Gateway is the request/response capability the Store depends on.
// *Client implements it.
type Gateway interface {
	ListChats(ctx context.Context) ([]*Conversation, error)
	GetChat(ctx context.Context, chatID string) (*Conversation, error)
	CreateChat(ctx context.Context, participantIDs []string, isGroup bool, name string) (*Conversation, error)
	SendMessage(ctx context.Context, chatID, content string) (*Message, error)
}

// TypingEmitter is the outbound half of the realtime channel the Store
// depends on. *Channel implements it. Delivery failures are swallowed:
// typing signals are fire-and-forget.
type TypingEmitter interface {
	EmitTyping(ctx context.Context, chatID string, isTyping bool) error
}

// Store owns the in-memory conversation collection and the current
// selection, and merges the two independent input sources — gateway
// responses and realtime events — into one consistent view.
//
// All methods are safe for concurrent use. A single coarse mutex guards the
// whole collection, so every merge is atomic with respect to readers: a
// snapshot never shows a LastMessage pointer out of step with its message
// sequence, or a half-applied presence update.
type Store struct {
	gateway     Gateway
	emitter     TypingEmitter
	localUserID string
	typingIdle  time.Duration

	mu         sync.Mutex
	chats      []*Conversation
	selectedID string
	typing     map[string]struct{}
	pending    map[string][]Message
	loading    map[string]bool

	localTyping bool
	typingTimer *time.Timer
}

type StoreOption func(*Store)

// WithTypingIdle overrides the local stopped-typing idle timeout.
func WithTypingIdle(d time.Duration) StoreOption {
	return func(s *Store) { s.typingIdle = d }
}

// NewStore creates a conversation store for the given local user. emitter
// may be nil when no realtime channel is attached.
func NewStore(gateway Gateway, emitter TypingEmitter, localUserID string, opts ...StoreOption) *Store {
	s := &Store{
		gateway:     gateway,
		emitter:     emitter,
		localUserID: localUserID,
		typingIdle:  DefaultTypingIdle,
		typing:      make(map[string]struct{}),
		pending:     make(map[string][]Message),
		loading:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Gateway-driven mutations
// ============================================================================

// LoadConversations fetches the full conversation list and replaces the
// collection wholesale. On failure the prior state is left untouched.
func (s *Store) LoadConversations(ctx context.Context) error {
	chats, err := s.gateway.ListChats(ctx)
	if err != nil {
		return &FetchError{cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chats {
		normalize(c)
	}
	s.chats = chats

	// Replay anything that was pushed before its conversation was known.
	for id := range s.pending {
		if c := s.findLocked(id); c != nil {
			s.drainPendingLocked(c)
		}
	}
	return nil
}

// LoadConversation fetches one conversation with its full message history
// and merges it into the collection by identifier: insert if absent,
// replace if present. The merge target is always the requested identifier,
// never the current selection, so a response that arrives after the
// selection moved on still lands in the right place.
func (s *Store) LoadConversation(ctx context.Context, chatID string) error {
	chat, err := s.gateway.GetChat(ctx, chatID)
	if err != nil {
		return &FetchError{cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	normalize(chat)
	if idx := s.indexLocked(chat.ID); idx >= 0 {
		s.chats[idx] = chat
	} else {
		s.chats = append([]*Conversation{chat}, s.chats...)
	}
	s.drainPendingLocked(chat)
	return nil
}

// CreateConversation creates a direct or group conversation and prepends it
// to the collection. participantIDs must be non-empty; group conversations
// require a name.
func (s *Store) CreateConversation(ctx context.Context, participantIDs []string, isGroup bool, name string) (*Conversation, error) {
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}
	if isGroup && strings.TrimSpace(name) == "" {
		return nil, ErrGroupNameRequired
	}

	chat, err := s.gateway.CreateChat(ctx, participantIDs, isGroup, name)
	if err != nil {
		return nil, &CreateError{cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	normalize(chat)
	if idx := s.indexLocked(chat.ID); idx >= 0 {
		// The server returned an existing conversation (e.g. a direct chat
		// that was already open); keep one entry.
		s.chats[idx] = chat
	} else {
		s.chats = append([]*Conversation{chat}, s.chats...)
	}
	s.drainPendingLocked(chat)
	return chat.Clone(), nil
}

// SendMessage persists a message through the gateway and merges the
// returned entry into the target conversation. The push-event path may
// deliver the same message concurrently; dedup by identifier makes the
// final state independent of which arrives first. As a side effect a
// stopped-typing signal is emitted for the conversation.
//
// There is no optimistic entry and no automatic retry: on SendError the
// conversation is unchanged.
func (s *Store) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.indexLocked(chatID) < 0 {
		s.mu.Unlock()
		return nil, ErrUnknownConversation
	}
	if s.selectedID == chatID {
		s.cancelLocalTypingLocked()
	}
	s.mu.Unlock()

	msg, err := s.gateway.SendMessage(ctx, chatID, text)
	if err != nil {
		return nil, &SendError{cause: err}
	}

	s.mu.Lock()
	if c := s.findLocked(chatID); c != nil {
		mergeMessage(c, *msg)
	}
	s.mu.Unlock()

	if s.emitter != nil {
		_ = s.emitter.EmitTyping(ctx, chatID, false)
	}

	cp := *msg
	return &cp, nil
}

// ============================================================================
// Selection
// ============================================================================

// SetSelected focuses a conversation. The typing set is scoped to the
// selection, so it is cleared, the local typing timer is cancelled, and the
// newly focused conversation's unread counter resets to zero.
func (s *Store) SetSelected(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(chatID)
	if idx < 0 {
		return ErrUnknownConversation
	}
	s.cancelLocalTypingLocked()
	s.selectedID = chatID
	s.typing = make(map[string]struct{})
	s.chats[idx].UnreadCount = 0
	return nil
}

// ClearSelected drops the focus. The local typing timer is cancelled so no
// stray stopped-typing signal fires for a conversation no longer in focus.
func (s *Store) ClearSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocalTypingLocked()
	s.selectedID = ""
	s.typing = make(map[string]struct{})
}

// ============================================================================
// Realtime events
// ============================================================================

// HandleEvent is the single entry point for realtime events. Register it
// with Channel.Route. It is cheap and non-blocking; the one slow path
// (materializing an unknown conversation) runs in the background.
func (s *Store) HandleEvent(ev Event) {
	switch ev := ev.(type) {
	case MessageEvent:
		s.onRemoteMessage(ev)
	case TypingEvent:
		s.onTyping(ev)
	case PresenceEvent:
		s.onPresence(ev)
	}
}

// onRemoteMessage appends a pushed message to its conversation, dedup by
// identifier against the send-confirmation path. A message for a
// conversation the Store has not seen yet (push raced the list load) is
// buffered and a background detail load is issued to materialize it.
func (s *Store) onRemoteMessage(ev MessageEvent) {
	s.mu.Lock()
	c := s.findLocked(ev.ChatID)
	if c == nil {
		s.pending[ev.ChatID] = append(s.pending[ev.ChatID], ev.Message)
		if !s.loading[ev.ChatID] {
			s.loading[ev.ChatID] = true
			go s.materialize(ev.ChatID)
		}
		s.mu.Unlock()
		return
	}
	s.applyRemoteLocked(c, ev.Message)
	s.mu.Unlock()
}

func (s *Store) onTyping(ev TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Typing state is only kept for the focused conversation.
	if ev.ChatID != s.selectedID || ev.UserID == s.localUserID {
		return
	}
	if ev.IsTyping {
		s.typing[ev.UserID] = struct{}{}
	} else {
		delete(s.typing, ev.UserID)
	}
}

// onPresence flips the online flag on every participant entry matching the
// user, across all conversations, under one lock acquisition — a snapshot
// taken afterwards never shows a partially applied update.
func (s *Store) onPresence(ev PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		for i := range c.Participants {
			if c.Participants[i].ID == ev.UserID {
				c.Participants[i].IsOnline = ev.IsOnline
			}
		}
	}
}

func (s *Store) materialize(chatID string) {
	defer func() {
		s.mu.Lock()
		delete(s.loading, chatID)
		s.mu.Unlock()
	}()
	// Best effort: on failure the buffered messages stay pending and the
	// next push for this conversation retries the load.
	_ = s.LoadConversation(context.Background(), chatID)
}

// ============================================================================
// Local typing signal
// ============================================================================

// NotifyTyping records a local keystroke in the focused conversation. The
// first keystroke emits a typing signal; each one re-arms an idle timer
// that emits the stopped-typing signal once the user pauses. Without a
// selection it is a no-op.
func (s *Store) NotifyTyping(ctx context.Context) error {
	s.mu.Lock()
	chatID := s.selectedID
	if chatID == "" {
		s.mu.Unlock()
		return nil
	}
	first := !s.localTyping
	s.localTyping = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingIdle, func() { s.typingIdleExpired(chatID) })
	s.mu.Unlock()

	if first && s.emitter != nil {
		return s.emitter.EmitTyping(ctx, chatID, true)
	}
	return nil
}

func (s *Store) typingIdleExpired(chatID string) {
	s.mu.Lock()
	if !s.localTyping || s.selectedID != chatID {
		s.mu.Unlock()
		return
	}
	s.localTyping = false
	s.typingTimer = nil
	s.mu.Unlock()

	if s.emitter != nil {
		_ = s.emitter.EmitTyping(context.Background(), chatID, false)
	}
}

func (s *Store) cancelLocalTypingLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.localTyping = false
}

// ============================================================================
// Readers
// ============================================================================

// Snapshot returns a deep copy of the conversation collection in its
// current order (most recent first).
func (s *Store) Snapshot() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c.Clone())
	}
	return out
}

// Get returns a copy of one conversation, or nil if unknown.
func (s *Store) Get(chatID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(chatID).Clone()
}

// Selected returns a copy of the focused conversation, or nil when nothing
// is focused. The selection is a reference by identifier, so mutations to
// the underlying conversation are always visible here.
func (s *Store) Selected() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedID == "" {
		return nil
	}
	return s.findLocked(s.selectedID).Clone()
}

// SelectedID returns the focused conversation's identifier, or "".
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// TypingUserIDs returns the users currently typing in the focused
// conversation, sorted for determinism.
func (s *Store) TypingUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.typing))
	for id := range s.typing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Internals (callers hold s.mu)
// ============================================================================

func (s *Store) indexLocked(chatID string) int {
	for i, c := range s.chats {
		if c.ID == chatID {
			return i
		}
	}
	return -1
}

func (s *Store) findLocked(chatID string) *Conversation {
	if idx := s.indexLocked(chatID); idx >= 0 {
		return s.chats[idx]
	}
	return nil
}

func (s *Store) applyRemoteLocked(c *Conversation, m Message) {
	if !mergeMessage(c, m) {
		return
	}
	if c.ID != s.selectedID {
		c.UnreadCount++
	}
}

func (s *Store) drainPendingLocked(c *Conversation) {
	for _, m := range s.pending[c.ID] {
		s.applyRemoteLocked(c, m)
	}
	delete(s.pending, c.ID)
}

// mergeMessage inserts m into c's ordered message sequence unless an entry
// with the same identifier already exists. Reports whether it inserted.
func mergeMessage(c *Conversation, m Message) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == m.ID {
			return false
		}
	}

	// Appends dominate, so walk backwards to the insertion point.
	i := len(c.Messages)
	for i > 0 && m.Before(c.Messages[i-1]) {
		i--
	}
	c.Messages = append(c.Messages, Message{})
	copy(c.Messages[i+1:], c.Messages[i:])
	c.Messages[i] = m

	last := c.Messages[len(c.Messages)-1]
	c.LastMessage = &last
	return true
}

// normalize re-establishes the Store's conversation invariants on a payload
// that came off the wire: ordered messages, no duplicate identifiers, and a
// LastMessage pointer matching the sequence.
func normalize(c *Conversation) {
	sort.Slice(c.Messages, func(i, j int) bool { return c.Messages[i].Before(c.Messages[j]) })

	seen := make(map[string]struct{}, len(c.Messages))
	out := c.Messages[:0]
	for _, m := range c.Messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	c.Messages = out

	if len(c.Messages) == 0 {
		c.LastMessage = nil
		return
	}
	last := c.Messages[len(c.Messages)-1]
	c.LastMessage = &last
}
