package chat

import (
	"time"

	"govorilka/internal/models"
)

// avatarGapThreshold is the silence between two consecutive messages of one
// sender after which the earlier message still shows the sender's avatar.
const avatarGapThreshold = 5 * time.Minute

// HasDateSeparator reports whether a date separator precedes cur: it does
// for the first message of the list (prev == nil) and whenever cur's
// calendar date differs from prev's. It is a pure function of adjacent
// messages and is recomputed on every render, never stored.
func HasDateSeparator(prev *models.Message, cur models.Message) bool {
	if prev == nil {
		return true
	}

	py, pm, pd := messageTime(*prev).Date()
	cy, cm, cd := messageTime(cur).Date()
	return py != cy || pm != cm || pd != cd
}

// NeedsAvatar reports whether cur shows its sender's avatar: it does when
// cur is the last message of the list (next == nil), when the next message
// belongs to a different sender, or when the gap to the next message
// exceeds the threshold.
func NeedsAvatar(cur models.Message, next *models.Message) bool {
	if next == nil {
		return true
	}
	if next.UserID != cur.UserID {
		return true
	}
	return messageTime(*next).Sub(messageTime(cur)) > avatarGapThreshold
}
