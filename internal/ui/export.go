package ui

import (
	"fmt"
	"html"
	"os"
	"strings"

	"govorilka/internal/chat"
	"govorilka/internal/content"
	"govorilka/internal/models"
)

// exportTranscript writes the current chat as a standalone HTML page.
// Message bodies go through the markdown renderer and the sanitizer, so a
// transcript is safe to open even when a peer sent hostile markup.
func (a *App) exportTranscript(path string) {
	chatID := a.syncer.CurrentChatID()
	if chatID == "" {
		fmt.Fprintln(a.out, "No chat selected")
		return
	}
	if path == "" {
		fmt.Fprintln(a.out, "usage: export <file>")
		return
	}

	doc, err := a.renderTranscript(chatID)
	if err != nil {
		fmt.Fprintln(a.out, "Failed to render transcript:", err)
		return
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		fmt.Fprintln(a.out, "Failed to write transcript:", err)
		return
	}
	fmt.Fprintf(a.out, "Exported %s to %s\n", a.chatDisplayName(chatID), path)
}

func (a *App) renderTranscript(chatID string) (string, error) {
	msgs := a.syncer.Messages(chatID)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(a.chatDisplayName(chatID)))
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(a.chatDisplayName(chatID)))

	var prev *models.Message
	for i := range msgs {
		m := msgs[i]
		if chat.HasDateSeparator(prev, m) {
			fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(a.messageDate(m)))
		}

		body, err := content.RenderMessage(m.Message)
		if err != nil {
			return "", err
		}

		var next *models.Message
		if i+1 < len(msgs) {
			next = &msgs[i+1]
		}
		sender := ""
		if chat.NeedsAvatar(m, next) {
			sender = fmt.Sprintf(" <b>%s</b>", html.EscapeString(a.senderName(m.UserID)))
		}
		fmt.Fprintf(&b, "<p><time>%s</time>%s</p>\n%s", a.messageTime(m), sender, body)
		prev = &msgs[i]
	}

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
