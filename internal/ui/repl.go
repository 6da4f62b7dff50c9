// Package ui is the interactive terminal front-end: a small command loop
// over the session store, the REST client, the realtime channel, the user
// cache and the chat synchronizer, all passed in explicitly.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"govorilka/internal/chat"
	"govorilka/internal/content"
	"govorilka/internal/models"
	"govorilka/internal/rest"
	"govorilka/internal/session"
	"govorilka/internal/users"
	"govorilka/internal/ws"
)

type App struct {
	sess    *session.Store
	api     *rest.Client
	channel *ws.Channel
	users   *users.Cache
	syncer  *chat.Synchronizer

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(
	sess *session.Store,
	api *rest.Client,
	channel *ws.Channel,
	userCache *users.Cache,
	syncer *chat.Synchronizer,
) *App {
	return &App{
		sess:    sess,
		api:     api,
		channel: channel,
		users:   userCache,
		syncer:  syncer,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
}

// Run starts the notification pumps and the command loop, returning when
// the user quits or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	userSub, err := a.channel.Subscribe(ws.TopicUser)
	if err != nil {
		return err
	}
	chatSub, err := a.channel.Subscribe(ws.TopicChat)
	if err != nil {
		return err
	}
	msgSub, err := a.channel.Subscribe(ws.TopicMessage)
	if err != nil {
		return err
	}
	defer a.channel.Unsubscribe(userSub)
	defer a.channel.Unsubscribe(chatSub)
	defer a.channel.Unsubscribe(msgSub)

	go a.pump(ctx, userSub, func(n models.Notification) { a.users.Apply(ctx, n) })
	go a.pump(ctx, chatSub, func(n models.Notification) { a.syncer.ApplyChat(ctx, n) })
	go a.pump(ctx, msgSub, func(n models.Notification) { a.syncer.ApplyMessage(ctx, n) })

	a.syncer.OnScroll(func(chatID string) {
		if chatID == a.syncer.CurrentChatID() {
			a.printNewest(chatID)
		}
	})

	// A restored, still valid session logs in without prompting.
	if a.sess.Current() != nil {
		a.channel.Open(ctx)
		a.hydrate(ctx)
	}

	fmt.Fprintln(a.out, "govorilka. Type 'help' for commands.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(a.out, a.prompt())
		line, err := a.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if quit := a.execute(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

func (a *App) pump(ctx context.Context, sub *ws.Subscription, apply func(models.Notification)) {
	for {
		select {
		case n, ok := <-sub.Notifications():
			if !ok {
				return
			}
			apply(n)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) prompt() string {
	cred := a.sess.Current()
	if cred == nil {
		return "(logged out)> "
	}
	if id := a.syncer.CurrentChatID(); id != "" {
		return fmt.Sprintf("%s @ %s> ", cred.Username, a.chatDisplayName(id))
	}
	return cred.Username + "> "
}

// execute runs one command line; it returns true when the loop should exit.
func (a *App) execute(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "help":
		a.printHelp()
	case "login":
		a.login(ctx)
	case "register":
		a.register(ctx)
	case "users":
		a.printUsers()
	case "chats":
		a.printChats()
	case "chat":
		a.selectChat(ctx, arg)
	case "open":
		a.openChat(ctx, arg)
	case "history":
		a.printMessages(a.syncer.CurrentChatID())
	case "send":
		a.send(ctx, arg)
	case "name":
		a.updateFullName(ctx, arg)
	case "avatar":
		a.uploadAvatar(ctx, arg)
	case "export":
		a.exportTranscript(arg)
	case "whoami":
		a.printProfile()
	case "retry":
		a.hydrate(ctx)
	case "logout":
		a.logout(ctx)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(a.out, "unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `Commands:
  login              authenticate with username/password
  register           create an account
  users              list the user directory
  chats              list your chats
  chat <n>           switch to chat number n (from 'chats')
  open <username>    open (or create) a direct chat with a user
  history            show the current chat's messages
  send <text>        send a message to the current chat
  name <full name>   update your profile full name
  avatar <file>      upload a jpeg/png avatar
  export <file>      export the current chat transcript to HTML
  whoami             show your profile
  retry              retry the initial data load
  logout             log out
  quit               leave
`)
}

func (a *App) login(ctx context.Context) {
	username, err := promptText(a.reader, a.out, "Username")
	if err != nil {
		return
	}
	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return
	}

	cred, err := a.api.Login(ctx, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		fmt.Fprintln(a.out, "Login failed")
		return
	}
	a.startSession(ctx, cred)
}

func (a *App) register(ctx context.Context) {
	username, err := promptText(a.reader, a.out, "Username")
	if err != nil {
		return
	}
	if err := content.ValidateUsername(username); err != nil {
		fmt.Fprintln(a.out, err)
		return
	}

	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return
	}
	if err := content.ValidatePassword(password); err != nil {
		fmt.Fprintln(a.out, err)
		return
	}
	repeat, err := promptPassword(a.out, "Repeat password")
	if err != nil {
		return
	}
	if password != repeat {
		fmt.Fprintln(a.out, "Passwords do not match")
		return
	}

	cred, err := a.api.Register(ctx, models.RegisterRequest{Username: username, Password: password})
	if err != nil {
		fmt.Fprintln(a.out, "Registration failed")
		return
	}
	a.startSession(ctx, cred)
}

func (a *App) startSession(ctx context.Context, cred models.Credential) {
	if err := a.sess.Set(cred); err != nil {
		fmt.Fprintln(a.out, "Failed to store session:", err)
		return
	}
	a.channel.Open(ctx)
	a.hydrate(ctx)
	fmt.Fprintf(a.out, "Logged in as %s\n", cred.Username)
}

// hydrate loads the user directory and the chat list. A chat list failure
// is the blocking error state; everything else degrades quietly.
func (a *App) hydrate(ctx context.Context) {
	if a.sess.Current() == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return
	}

	a.users.Hydrate(ctx)
	if err := a.syncer.Load(ctx); err != nil {
		fmt.Fprintln(a.out, "Failed to load initial data. Type 'retry' to try again.")
	}
}

func (a *App) logout(ctx context.Context) {
	if a.sess.Current() == nil {
		return
	}
	if err := a.api.Logout(ctx); err != nil {
		// The server-side token may outlive us; the local session goes away
		// regardless.
		fmt.Fprintln(a.out, "Logout request failed:", err)
	}
	a.sess.Clear()
	a.channel.Close()
	fmt.Fprintln(a.out, "Logged out")
}

func (a *App) printUsers() {
	currentID := a.sess.UserID()
	snapshot := a.users.Snapshot()

	list := make([]users.Record, 0, len(snapshot))
	for _, rec := range snapshot {
		if rec.ID != currentID {
			list = append(list, rec)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].DisplayName() < list[j].DisplayName()
	})

	for _, rec := range list {
		status := " "
		if rec.Active {
			status = "*"
		}
		joined := ""
		if rec.CreatedAt != nil {
			joined = " joined " + rec.CreatedAt.Format("02.01.2006")
		}
		fmt.Fprintf(a.out, "%s %s (%s)%s\n", status, rec.DisplayName(), rec.Username, joined)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No other users")
	}
}

func (a *App) printChats() {
	chats := a.syncer.Chats()
	if len(chats) == 0 {
		fmt.Fprintln(a.out, "No chats yet, use 'open <username>'")
		return
	}
	for i, c := range chats {
		marker := " "
		if c.ID == a.syncer.CurrentChatID() {
			marker = ">"
		}
		fmt.Fprintf(a.out, "%s %d. %s\n", marker, i+1, a.chatDisplayName(c.ID))
	}
}

func (a *App) selectChat(ctx context.Context, arg string) {
	n, err := strconv.Atoi(arg)
	chats := a.syncer.Chats()
	if err != nil || n < 1 || n > len(chats) {
		fmt.Fprintln(a.out, "usage: chat <n> (see 'chats')")
		return
	}
	a.syncer.SelectChat(ctx, chats[n-1].ID)
	a.printMessages(chats[n-1].ID)
}

func (a *App) openChat(ctx context.Context, username string) {
	if username == "" {
		fmt.Fprintln(a.out, "usage: open <username>")
		return
	}

	var target *users.Record
	for _, rec := range a.users.Snapshot() {
		if rec.Username == username {
			target = &rec
			break
		}
	}
	if target == nil {
		fmt.Fprintf(a.out, "unknown user %q\n", username)
		return
	}

	c, err := a.syncer.CreateOrOpenChat(ctx, target.ID)
	if err != nil {
		fmt.Fprintln(a.out, "Failed to open chat:", err)
		return
	}
	if c.ID != "" {
		a.printMessages(c.ID)
	}
}

func (a *App) send(ctx context.Context, text string) {
	if a.syncer.CurrentChatID() == "" {
		fmt.Fprintln(a.out, "No chat selected")
		return
	}
	// The typed line is consumed whether or not the send succeeds.
	if err := a.syncer.SendMessage(ctx, text); err != nil {
		fmt.Fprintln(a.out, "Failed to send message")
	}
}

func (a *App) updateFullName(ctx context.Context, fullName string) {
	cred := a.sess.Current()
	if cred == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return
	}

	user, err := a.api.UpdateUser(ctx, models.UpdateUserRequest{ID: cred.ID, FullName: fullName})
	if err != nil {
		fmt.Fprintln(a.out, "Failed to update profile:", err)
		return
	}
	a.sess.MergeProfile(user)
	fmt.Fprintln(a.out, "Profile updated")
}

func (a *App) uploadAvatar(ctx context.Context, path string) {
	cred := a.sess.Current()
	if cred == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return
	}
	if path == "" {
		fmt.Fprintln(a.out, "usage: avatar <file>")
		return
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(a.out, "Failed to read file:", err)
		return
	}
	if err := a.api.UploadAvatar(ctx, cred.ID, blob); err != nil {
		fmt.Fprintln(a.out, "Failed to upload avatar:", err)
		return
	}
	fmt.Fprintln(a.out, "Avatar uploaded")
}

func (a *App) printProfile() {
	cred := a.sess.Current()
	if cred == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return
	}
	fmt.Fprintf(a.out, "%s (%s)\n", cred.DisplayName(), cred.Username)
	if cred.CreatedAt != nil {
		fmt.Fprintf(a.out, "joined %s\n", cred.CreatedAt.Format("02.01.2006"))
	}
}

// printMessages renders a chat's messages with date separators and sender
// names at the end of each sender group, the same grouping the web client
// derives per render.
func (a *App) printMessages(chatID string) {
	if chatID == "" {
		fmt.Fprintln(a.out, "No chat selected")
		return
	}
	if a.syncer.MessagesLoading() {
		fmt.Fprintln(a.out, "(loading...)")
	}

	msgs := a.syncer.Messages(chatID)
	var prev *models.Message
	for i := range msgs {
		m := msgs[i]
		if chat.HasDateSeparator(prev, m) {
			fmt.Fprintf(a.out, "--- %s ---\n", a.messageDate(m))
		}

		var next *models.Message
		if i+1 < len(msgs) {
			next = &msgs[i+1]
		}
		sender := ""
		if chat.NeedsAvatar(m, next) {
			sender = " [" + a.senderName(m.UserID) + "]"
		}
		fmt.Fprintf(a.out, "%s %s%s\n", a.messageTime(m), m.Message, sender)
		prev = &msgs[i]
	}
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "(no messages)")
	}
}

func (a *App) printNewest(chatID string) {
	msgs := a.syncer.Messages(chatID)
	if len(msgs) == 0 {
		return
	}
	m := msgs[len(msgs)-1]
	fmt.Fprintf(a.out, "\n%s %s [%s]\n", a.messageTime(m), m.Message, a.senderName(m.UserID))
}

func (a *App) chatDisplayName(chatID string) string {
	for _, c := range a.syncer.Chats() {
		if c.ID != chatID {
			continue
		}
		if c.Title != "" {
			return c.Title
		}
		if rec, ok := a.users.Get(c.Counterpart(a.sess.UserID())); ok {
			return rec.DisplayName()
		}
		return "Unknown User"
	}
	return chatID
}

func (a *App) senderName(userID string) string {
	if userID == a.sess.UserID() {
		return "me"
	}
	if rec, ok := a.users.Get(userID); ok {
		return rec.DisplayName()
	}
	return "Unknown User"
}

func (a *App) messageTime(m models.Message) string {
	if m.CreatedAt == nil {
		return "--:--"
	}
	return m.CreatedAt.Local().Format("15:04")
}

func (a *App) messageDate(m models.Message) string {
	if m.CreatedAt == nil {
		return "unknown date"
	}
	return m.CreatedAt.Local().Format("January 2, 2006")
}
