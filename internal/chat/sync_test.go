package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"govorilka/internal/models"
)

type fakeIdentity struct{ userID string }

func (f fakeIdentity) UserID() string { return f.userID }

type fakeChatAPI struct {
	mu       sync.Mutex
	chats    []models.Chat
	messages map[string][]models.Message

	listChatsErr  error
	createChatErr error
	createMsgErr  error
	getMsgErr     error

	listChatsCalls    int
	listMessagesCalls map[string]int
	createChatCalls   int

	createChatGate chan struct{}
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{
		messages:          make(map[string][]models.Message),
		listMessagesCalls: make(map[string]int),
	}
}

func (f *fakeChatAPI) ListChats(context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listChatsCalls++
	if f.listChatsErr != nil {
		return nil, f.listChatsErr
	}
	return append([]models.Chat(nil), f.chats...), nil
}

func (f *fakeChatAPI) CreateChat(_ context.Context, req models.CreateChatRequest) (models.Chat, error) {
	f.mu.Lock()
	f.createChatCalls++
	gate := f.createChatGate
	err := f.createChatErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return models.Chat{}, err
	}

	chat := models.Chat{ID: uuid.NewString(), CreatorID: req.CreatorID, DirectUserID: req.DirectUserID}
	f.mu.Lock()
	f.chats = append(f.chats, chat)
	f.mu.Unlock()
	return chat, nil
}

func (f *fakeChatAPI) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.ID == chatID {
			return c, nil
		}
	}
	return models.Chat{}, errors.New("no such chat")
}

func (f *fakeChatAPI) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listMessagesCalls[chatID]++
	return append([]models.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeChatAPI) CreateMessage(_ context.Context, req models.CreateMessageRequest) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createMsgErr != nil {
		return models.Message{}, f.createMsgErr
	}
	now := time.Now()
	msg := models.Message{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		Message:   req.Message,
		CreatedAt: &now,
	}
	f.messages[req.ChatID] = append(f.messages[req.ChatID], msg)
	return msg, nil
}

func (f *fakeChatAPI) GetMessage(_ context.Context, chatID, messageID string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getMsgErr != nil {
		return models.Message{}, f.getMsgErr
	}
	for _, m := range f.messages[chatID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return models.Message{}, errors.New("no such message")
}

func TestSynchronizerLoad(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{
		{ID: "c1", CreatorID: "me", DirectUserID: "u2"},
		{ID: "c2", CreatorID: "u3", DirectUserID: "me"},
	}
	api.messages["c1"] = []models.Message{
		msg("m2", "u2", ts(10)),
		msg("m1", "me", ts(5)),
	}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	if s.State() != Uninitialized {
		t.Fatalf("expected Uninitialized, got %v", s.State())
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("expected Ready, got %v", s.State())
	}
	if len(s.Chats()) != 2 {
		t.Errorf("expected 2 chats, got %d", len(s.Chats()))
	}
	if s.CurrentChatID() != "c1" {
		t.Errorf("expected first chat selected, got %q", s.CurrentChatID())
	}

	got := s.Messages("c1")
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("expected sorted messages for the selected chat, got %v", got)
	}
}

func TestSynchronizerLoadFailureAndRetry(t *testing.T) {
	api := newFakeChatAPI()
	api.listChatsErr = errors.New("backend down")

	s := NewSynchronizer(api, fakeIdentity{"me"})
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected Load to fail")
	}
	if s.State() != Failed {
		t.Errorf("expected Failed, got %v", s.State())
	}

	api.mu.Lock()
	api.listChatsErr = nil
	api.chats = []models.Chat{{ID: "c1"}}
	api.mu.Unlock()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("expected Ready after retry, got %v", s.State())
	}
	if s.CurrentChatID() != "c1" {
		t.Errorf("expected c1 selected after retry, got %q", s.CurrentChatID())
	}
}

func TestSynchronizerSelectChat(t *testing.T) {
	api := newFakeChatAPI()
	api.messages["c1"] = []models.Message{msg("m1", "u1", ts(0))}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()

	s.SelectChat(ctx, "c1")
	if s.CurrentChatID() != "c1" {
		t.Fatalf("expected c1 selected, got %q", s.CurrentChatID())
	}
	if s.MessagesLoading() {
		t.Error("expected loading flag cleared after reload")
	}

	// Re-selecting the current chat does not refetch.
	s.SelectChat(ctx, "c1")
	if api.listMessagesCalls["c1"] != 1 {
		t.Errorf("expected one message fetch, got %d", api.listMessagesCalls["c1"])
	}

	// An empty id is ignored.
	s.SelectChat(ctx, "")
	if s.CurrentChatID() != "c1" {
		t.Errorf("empty select changed the selection to %q", s.CurrentChatID())
	}
}

func TestSynchronizerCreateOrOpenExisting(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1", CreatorID: "u2", DirectUserID: "me"}}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	// u2 already has a chat with us, whichever side created it.
	chat, err := s.CreateOrOpenChat(ctx, "u2")
	if err != nil {
		t.Fatalf("CreateOrOpenChat failed: %v", err)
	}
	if chat.ID != "c1" {
		t.Errorf("expected existing chat c1, got %q", chat.ID)
	}
	if api.createChatCalls != 0 {
		t.Errorf("expected no create call, got %d", api.createChatCalls)
	}
	if s.CurrentChatID() != "c1" {
		t.Errorf("expected c1 selected, got %q", s.CurrentChatID())
	}
}

func TestSynchronizerCreateOrOpenNew(t *testing.T) {
	api := newFakeChatAPI()
	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()

	chat, err := s.CreateOrOpenChat(ctx, "u9")
	if err != nil {
		t.Fatalf("CreateOrOpenChat failed: %v", err)
	}
	if chat.CreatorID != "me" || chat.DirectUserID != "u9" {
		t.Errorf("unexpected chat %+v", chat)
	}
	if s.CurrentChatID() != chat.ID {
		t.Errorf("expected new chat selected, got %q", s.CurrentChatID())
	}
	if len(s.Chats()) != 1 {
		t.Errorf("expected chat merged into the list, got %v", s.Chats())
	}
}

func TestSynchronizerCreateOrOpenDeduplicates(t *testing.T) {
	api := newFakeChatAPI()
	api.createChatGate = make(chan struct{})

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()

	done := make(chan models.Chat)
	go func() {
		chat, _ := s.CreateOrOpenChat(ctx, "u9")
		done <- chat
	}()

	// Wait for the first create to be in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		api.mu.Lock()
		calls := api.createChatCalls
		api.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first create never started")
		}
		time.Sleep(time.Millisecond)
	}

	// A second click while the create is pending does nothing.
	chat, err := s.CreateOrOpenChat(ctx, "u9")
	if err != nil {
		t.Fatalf("second invocation errored: %v", err)
	}
	if chat.ID != "" {
		t.Errorf("expected the duplicate call to return nothing, got %+v", chat)
	}

	close(api.createChatGate)
	created := <-done

	if api.createChatCalls != 1 {
		t.Errorf("expected exactly one create call, got %d", api.createChatCalls)
	}
	if created.ID == "" {
		t.Error("expected the first invocation to return the created chat")
	}
}

func TestSynchronizerCreateOrOpenFailure(t *testing.T) {
	api := newFakeChatAPI()
	api.createChatErr = errors.New("backend down")

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()

	if _, err := s.CreateOrOpenChat(ctx, "u9"); err == nil {
		t.Fatal("expected create failure to surface")
	}
	if s.CurrentChatID() != "" {
		t.Errorf("expected no selection after failed create, got %q", s.CurrentChatID())
	}

	// The in-flight mark is released: a later retry issues a new create.
	api.mu.Lock()
	api.createChatErr = nil
	api.mu.Unlock()

	if _, err := s.CreateOrOpenChat(ctx, "u9"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if api.createChatCalls != 2 {
		t.Errorf("expected a second create call on retry, got %d", api.createChatCalls)
	}
}

func TestSynchronizerCreateOrOpenEmptyID(t *testing.T) {
	api := newFakeChatAPI()
	s := NewSynchronizer(api, fakeIdentity{"me"})

	chat, err := s.CreateOrOpenChat(context.Background(), "")
	if err != nil || chat.ID != "" {
		t.Errorf("expected silent no-op, got %+v, %v", chat, err)
	}
	if api.createChatCalls != 0 {
		t.Errorf("expected no create call, got %d", api.createChatCalls)
	}
}

func TestSynchronizerSendMessage(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	var scrolledTo string
	s.OnScroll(func(chatID string) { scrolledTo = chatID })

	if err := s.SendMessage(ctx, "  hello there  "); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	got := s.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Message != "hello there" {
		t.Errorf("expected trimmed text, got %q", got[0].Message)
	}
	if got[0].UserID != "me" {
		t.Errorf("expected sender id me, got %q", got[0].UserID)
	}
	if scrolledTo != "c1" {
		t.Errorf("expected scroll to c1, got %q", scrolledTo)
	}
}

func TestSynchronizerSendMessageNoOps(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()

	// No selected chat yet.
	if err := s.SendMessage(ctx, "hello"); err != nil {
		t.Errorf("expected silent no-op without a chat, got %v", err)
	}

	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	// Whitespace-only input never reaches the wire.
	if err := s.SendMessage(ctx, "   \t  "); err != nil {
		t.Errorf("expected silent no-op on blank input, got %v", err)
	}
	if len(s.Messages("c1")) != 0 {
		t.Errorf("expected no messages, got %v", s.Messages("c1"))
	}
}

func TestSynchronizerSendMessageFailure(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	api.mu.Lock()
	api.createMsgErr = errors.New("backend down")
	api.mu.Unlock()

	if err := s.SendMessage(ctx, "hello"); err == nil {
		t.Fatal("expected send failure to surface")
	}
	// No optimistic insert: the failed message never appears.
	if len(s.Messages("c1")) != 0 {
		t.Errorf("expected no local message after failure, got %v", s.Messages("c1"))
	}
}

func TestSynchronizerApplyMessage(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}
	api.messages["c1"] = []models.Message{msg("m1", "u2", ts(0))}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	var scrolls []string
	s.OnScroll(func(chatID string) { scrolls = append(scrolls, chatID) })

	// A create on the selected chat merges and scrolls.
	api.mu.Lock()
	api.messages["c1"] = append(api.messages["c1"], msg("m2", "u2", ts(10)))
	api.mu.Unlock()

	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageCreate, ChatID: "c1", MessageID: "m2"})
	if len(s.Messages("c1")) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages("c1")))
	}
	if len(scrolls) != 1 || scrolls[0] != "c1" {
		t.Errorf("expected one scroll to c1, got %v", scrolls)
	}

	// The same notification again changes nothing.
	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageCreate, ChatID: "c1", MessageID: "m2"})
	if len(s.Messages("c1")) != 2 {
		t.Errorf("duplicate notification changed the list: %v", s.Messages("c1"))
	}

	// An update does not scroll.
	scrolls = nil
	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageUpdate, ChatID: "c1", MessageID: "m1"})
	if len(scrolls) != 0 {
		t.Errorf("expected no scroll on update, got %v", scrolls)
	}

	// A delete drops the message.
	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageDelete, ChatID: "c1", MessageID: "m1"})
	got := s.Messages("c1")
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("expected only m2 left, got %v", got)
	}
}

func TestSynchronizerApplyMessageOtherChatNoScroll(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}, {ID: "c2"}}
	api.messages["c2"] = []models.Message{msg("m1", "u2", ts(0))}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	var scrolls []string
	s.OnScroll(func(chatID string) { scrolls = append(scrolls, chatID) })

	// c1 is selected; a create for c2 merges silently.
	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageCreate, ChatID: "c2", MessageID: "m1"})
	if len(s.Messages("c2")) != 1 {
		t.Errorf("expected the background chat updated, got %v", s.Messages("c2"))
	}
	if len(scrolls) != 0 {
		t.Errorf("expected no scroll for a background chat, got %v", scrolls)
	}
}

func TestSynchronizerApplyMessageFetchFailure(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}
	api.messages["c1"] = []models.Message{msg("m1", "u2", ts(0))}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	api.mu.Lock()
	api.getMsgErr = errors.New("backend down")
	api.mu.Unlock()

	s.ApplyMessage(ctx, models.Notification{Type: models.NotifyMessageCreate, ChatID: "c1", MessageID: "m9"})
	if len(s.Messages("c1")) != 1 {
		t.Errorf("expected the list untouched after a failed fetch, got %v", s.Messages("c1"))
	}
}

func TestSynchronizerApplyChat(t *testing.T) {
	api := newFakeChatAPI()
	api.chats = []models.Chat{{ID: "c1"}}

	s := NewSynchronizer(api, fakeIdentity{"me"})
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	api.mu.Lock()
	api.chats = append(api.chats, models.Chat{ID: "c2", Title: "new"})
	api.mu.Unlock()

	s.ApplyChat(ctx, models.Notification{Type: models.NotifyChatCreate, ChatID: "c2"})
	if len(s.Chats()) != 2 {
		t.Errorf("expected 2 chats, got %v", s.Chats())
	}

	// Selection survives an unrelated chat delete.
	s.ApplyChat(ctx, models.Notification{Type: models.NotifyChatDelete, ChatID: "c2"})
	if s.CurrentChatID() != "c1" {
		t.Errorf("unrelated delete changed the selection to %q", s.CurrentChatID())
	}

	// Deleting the selected chat clears the selection and its messages.
	s.ApplyChat(ctx, models.Notification{Type: models.NotifyChatDelete, ChatID: "c1"})
	if s.CurrentChatID() != "" {
		t.Errorf("expected no selection, got %q", s.CurrentChatID())
	}
	if len(s.Chats()) != 0 {
		t.Errorf("expected empty chat list, got %v", s.Chats())
	}
	if len(s.Messages("c1")) != 0 {
		t.Errorf("expected the deleted chat's messages dropped, got %v", s.Messages("c1"))
	}
}
