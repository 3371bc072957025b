package daily

import (
	"github.com/Napageneral/chronicle/internal/chatdb"
	"github.com/Napageneral/chronicle/internal/contacts"
)

// GroupByConversation partitions messages into conversations and splits them
// into the known set and the unknown aggregate. Unknown conversations never
// surface individually: only their two counts leave this function, so nothing
// downstream can render their content or participants.
func GroupByConversation(messages []chatdb.Message, dir contacts.Directory) (known map[string][]chatdb.Message, unknownConversations, unknownMessages int) {
	byConversation := make(map[string][]chatdb.Message)
	var order []string
	for _, msg := range messages {
		key := ConversationKey(msg)
		if _, seen := byConversation[key]; !seen {
			order = append(order, key)
		}
		byConversation[key] = append(byConversation[key], msg)
	}

	known = make(map[string][]chatdb.Message)
	for _, key := range order {
		msgs := byConversation[key]
		if isKnown(key, msgs, dir) {
			known[key] = msgs
		} else {
			unknownConversations++
			unknownMessages += len(msgs)
		}
	}
	return known, unknownConversations, unknownMessages
}

// ConversationKey returns the grouping key: the chat identifier for group
// conversations, the counterpart handle for direct ones.
func ConversationKey(msg chatdb.Message) string {
	if msg.IsGroup {
		if msg.ChatID != "" {
			return msg.ChatID
		}
		if msg.HandleID != "" {
			return msg.HandleID
		}
		return "unknown-group"
	}
	if msg.HandleID != "" {
		return msg.HandleID
	}
	return "unknown"
}

// isKnown scans a conversation's messages and short-circuits on the first one
// that ties it to the directory or to an explicit group name.
func isKnown(key string, msgs []chatdb.Message, dir contacts.Directory) bool {
	for _, msg := range msgs {
		if msg.IsGroup {
			if msg.ChatDisplayName != "" {
				return true
			}
			if !msg.IsFromMe {
				if _, ok := dir.Lookup(msg.HandleID); ok {
					return true
				}
			}
			continue
		}

		handle := key
		if !msg.IsFromMe {
			handle = msg.HandleID
		}
		if _, ok := dir.Lookup(handle); ok {
			return true
		}
	}
	return false
}
