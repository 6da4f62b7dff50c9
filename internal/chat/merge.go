package chat

import (
	"sort"
	"time"

	"govorilka/internal/models"
)

// addOrReplaceByID merges an entity into a list: replace in place if the id
// exists, append otherwise. The input slice is never mutated; a new slice is
// returned. Applying the same entity twice yields the same list, which is
// what keeps every merge in this package idempotent.
func addOrReplaceByID[T any](list []T, idOf func(T) string, entity T) []T {
	result := make([]T, len(list), len(list)+1)
	copy(result, list)

	id := idOf(entity)
	for i := range result {
		if idOf(result[i]) == id {
			result[i] = entity
			return result
		}
	}
	return append(result, entity)
}

// removeByID returns a new list without the entity with the given id.
// Removing an absent id returns an equal list.
func removeByID[T any](list []T, idOf func(T) string, id string) []T {
	result := make([]T, 0, len(list))
	for _, e := range list {
		if idOf(e) != id {
			result = append(result, e)
		}
	}
	return result
}

func chatID(c models.Chat) string       { return c.ID }
func messageID(m models.Message) string { return m.ID }

func messageTime(m models.Message) time.Time {
	if m.CreatedAt == nil {
		return time.Time{}
	}
	return *m.CreatedAt
}

// sortMessages orders a chat's message list by createdAt ascending. The sort
// is stable: equal timestamps preserve their pre-sort relative order.
func sortMessages(msgs []models.Message) []models.Message {
	result := make([]models.Message, len(msgs))
	copy(result, msgs)
	sort.SliceStable(result, func(i, j int) bool {
		return messageTime(result[i]).Before(messageTime(result[j]))
	})
	return result
}

// mergeMessage inserts or replaces a message in a chat's ordered list,
// keeping the createdAt ordering.
func mergeMessage(msgs []models.Message, msg models.Message) []models.Message {
	return sortMessages(addOrReplaceByID(msgs, messageID, msg))
}
