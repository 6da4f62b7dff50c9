// Package chat owns the chat list, the currently selected chat and the
// per-chat message orderings, reconciling optimistic local actions with
// server acknowledgments and realtime notifications that may race each
// other. All cached values are replaced wholesale on update, never mutated
// in place, so observers always see consistent snapshots.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"govorilka/internal/models"
)

// State is the per-session lifecycle of the synchronizer.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	// Failed marks an initial hydration failure: the only transport error
	// that surfaces as a user-visible, blocking state. Retried via Load.
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "uninitialized"
}

type api interface {
	ListChats(ctx context.Context) ([]models.Chat, error)
	CreateChat(ctx context.Context, req models.CreateChatRequest) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, req models.CreateMessageRequest) (models.Message, error)
	GetMessage(ctx context.Context, chatID, messageID string) (models.Message, error)
}

type identity interface {
	UserID() string
}

// Synchronizer reconciles the locally cached chats and messages against
// REST responses and push notifications.
type Synchronizer struct {
	api api
	id  identity

	mu              sync.RWMutex
	state           State
	chats           []models.Chat
	currentChatID   string
	messages        map[string][]models.Message
	messagesLoading bool
	creating        map[string]bool
	onScroll        func(chatID string)
}

func NewSynchronizer(api api, id identity) *Synchronizer {
	return &Synchronizer{
		api:      api,
		id:       id,
		messages: make(map[string][]models.Message),
		creating: make(map[string]bool),
	}
}

// OnScroll registers the hook fired when the view should scroll to the
// newest message of the given chat.
func (s *Synchronizer) OnScroll(fn func(chatID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onScroll = fn
}

// Load performs the initial hydration: fetch the chat list and, if any chat
// exists, select the first one as current. Failure leaves the synchronizer
// in the Failed state and is surfaced to the caller; it is the only
// user-visible transport error in this package.
func (s *Synchronizer) Load(ctx context.Context) error {
	s.mu.Lock()
	s.state = Loading
	s.mu.Unlock()

	chats, err := s.api.ListChats(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		return fmt.Errorf("failed to load chats: %w", err)
	}

	s.mu.Lock()
	s.chats = chats
	s.state = Ready
	s.currentChatID = ""
	first := ""
	if len(chats) > 0 {
		first = chats[0].ID
	}
	s.mu.Unlock()

	if first != "" {
		s.SelectChat(ctx, first)
	}
	return nil
}

// SelectChat makes chatID current and reloads its message list. Selecting
// the already current chat is a no-op. Overlapping reloads from rapid
// switching are not cancelled: the last completing fetch for a chat id wins.
// A stale slow response can therefore stomp a newer full-list replace for
// the same chat id; per-message merges stay safe because they are
// idempotent by id.
func (s *Synchronizer) SelectChat(ctx context.Context, chatID string) {
	s.mu.Lock()
	if chatID == "" || chatID == s.currentChatID {
		s.mu.Unlock()
		return
	}
	s.currentChatID = chatID
	s.messagesLoading = true
	s.mu.Unlock()

	s.reloadMessages(ctx, chatID)
}

func (s *Synchronizer) reloadMessages(ctx context.Context, chatID string) {
	msgs, err := s.api.ListMessages(ctx, chatID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentChatID == chatID {
		s.messagesLoading = false
	}
	if err != nil {
		slog.Warn("failed to load messages", "chat_id", chatID, "error", err)
		return
	}
	s.messages[chatID] = sortMessages(msgs)
}

// CreateOrOpenChat selects the existing chat with the given counterpart, or
// creates one and selects it. Rapid repeated invocations for the same
// counterpart while the first create is in flight do not create duplicates.
// On create failure the "creating" mark is cleared and no chat is selected.
// An empty counterpart id is a silent no-op.
func (s *Synchronizer) CreateOrOpenChat(ctx context.Context, userID string) (models.Chat, error) {
	if userID == "" {
		return models.Chat{}, nil
	}

	s.mu.Lock()
	for _, c := range s.chats {
		if c.CreatorID == userID || c.DirectUserID == userID {
			s.mu.Unlock()
			s.SelectChat(ctx, c.ID)
			return c, nil
		}
	}
	if s.creating[userID] {
		// A create for this counterpart is already in flight.
		s.mu.Unlock()
		return models.Chat{}, nil
	}
	s.creating[userID] = true
	creatorID := s.id.UserID()
	s.mu.Unlock()

	chat, err := s.api.CreateChat(ctx, models.CreateChatRequest{
		CreatorID:    creatorID,
		DirectUserID: userID,
	})

	s.mu.Lock()
	delete(s.creating, userID)
	if err != nil {
		s.currentChatID = ""
		s.mu.Unlock()
		return models.Chat{}, fmt.Errorf("failed to create chat: %w", err)
	}
	s.chats = addOrReplaceByID(s.chats, chatID, chat)
	s.mu.Unlock()

	s.SelectChat(ctx, chat.ID)
	return chat, nil
}

// SendMessage sends text to the currently selected chat. Empty input after
// trimming, or no selected chat, is a silent no-op: no request is issued.
// On success the acknowledged message is merged into the chat's ordered
// list and the view scrolls to it; there is no local insert before the ack.
func (s *Synchronizer) SendMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	s.mu.RLock()
	chatID := s.currentChatID
	s.mu.RUnlock()
	if chatID == "" {
		return nil
	}

	msg, err := s.api.CreateMessage(ctx, models.CreateMessageRequest{
		ChatID:  chatID,
		UserID:  s.id.UserID(),
		Message: trimmed,
	})
	if err != nil {
		// The UI has already cleared the input; it is not restored here.
		// Known asymmetry carried over from the product behavior.
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	s.messages[chatID] = mergeMessage(s.messages[chatID], msg)
	scroll := s.onScroll
	s.mu.Unlock()

	if scroll != nil {
		scroll(chatID)
	}
	return nil
}

// ApplyMessage merges a message notification into the affected chat's
// ordered list. The entity is re-fetched via REST: the notification names
// it but does not carry it. Scroll-to-end fires only for a create on the
// currently selected chat.
func (s *Synchronizer) ApplyMessage(ctx context.Context, msg models.Notification) {
	switch msg.Type {
	case models.NotifyMessageCreate, models.NotifyMessageUpdate:
		if msg.ChatID == "" || msg.MessageID == "" {
			return
		}

		m, err := s.api.GetMessage(ctx, msg.ChatID, msg.MessageID)
		if err != nil {
			slog.Warn("failed to fetch changed message",
				"chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
			return
		}

		s.mu.Lock()
		s.messages[msg.ChatID] = mergeMessage(s.messages[msg.ChatID], m)
		scroll := s.onScroll
		isCurrent := s.currentChatID == msg.ChatID
		s.mu.Unlock()

		if msg.Type == models.NotifyMessageCreate && isCurrent && scroll != nil {
			scroll(msg.ChatID)
		}
	case models.NotifyMessageDelete:
		if msg.ChatID == "" || msg.MessageID == "" {
			return
		}

		s.mu.Lock()
		s.messages[msg.ChatID] = removeByID(s.messages[msg.ChatID], messageID, msg.MessageID)
		s.mu.Unlock()
	default:
		slog.Warn("unrecognized message notification", "type", msg.Type)
	}
}

// ApplyChat merges a chat notification into the chat list. A delete drops
// the chat's cached message list entirely; if the removed chat was
// selected, no chat is selected afterwards.
func (s *Synchronizer) ApplyChat(ctx context.Context, msg models.Notification) {
	switch msg.Type {
	case models.NotifyChatCreate, models.NotifyChatUpdate:
		if msg.ChatID == "" {
			return
		}

		chat, err := s.api.GetChat(ctx, msg.ChatID)
		if err != nil {
			slog.Warn("failed to fetch changed chat", "chat_id", msg.ChatID, "error", err)
			return
		}

		s.mu.Lock()
		s.chats = addOrReplaceByID(s.chats, chatID, chat)
		s.mu.Unlock()
	case models.NotifyChatDelete:
		if msg.ChatID == "" {
			return
		}

		s.mu.Lock()
		s.chats = removeByID(s.chats, chatID, msg.ChatID)
		delete(s.messages, msg.ChatID)
		if s.currentChatID == msg.ChatID {
			s.currentChatID = ""
		}
		s.mu.Unlock()
	default:
		slog.Warn("unrecognized chat notification", "type", msg.Type)
	}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Chats returns a copy of the chat list.
func (s *Synchronizer) Chats() []models.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Chat, len(s.chats))
	copy(result, s.chats)
	return result
}

// CurrentChatID returns the id of the selected chat, or empty.
func (s *Synchronizer) CurrentChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentChatID
}

// Messages returns a copy of a chat's ordered message list.
func (s *Synchronizer) Messages(chatID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	result := make([]models.Message, len(msgs))
	copy(result, msgs)
	return result
}

// MessagesLoading reports whether a reload for the selected chat is still
// in flight.
func (s *Synchronizer) MessagesLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLoading
}
