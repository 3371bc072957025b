// Package daily reconstructs privacy-filtered per-day conversation records
// from extracted messages. Known contacts get full detail; everyone else is
// reduced to aggregate counts.
package daily

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Napageneral/chronicle/internal/chatdb"
	"github.com/Napageneral/chronicle/internal/contacts"
)

const dateLayout = "2006-01-02"

// Frontmatter is the structured metadata attached to a day record.
type Frontmatter struct {
	Type                      string   `yaml:"type" json:"type"`
	Date                      string   `yaml:"date" json:"date"`
	ConversationCount         int      `yaml:"conversation_count" json:"conversation_count"`
	MessageCount              int      `yaml:"message_count" json:"message_count"`
	KnownContactConversations int      `yaml:"known_contact_conversations" json:"known_contact_conversations"`
	Source                    string   `yaml:"source" json:"source"`
	LastSynced                string   `yaml:"last_synced" json:"last_synced"`
	Tags                      []string `yaml:"tags" json:"tags"`
}

// DayRecord is one day's reconstructed output, ready for a sink. Unknown
// conversations arrive already reduced to the counts in Frontmatter; the
// record carries no field that could render their content.
type DayRecord struct {
	Date        string
	Frontmatter Frontmatter
	Body        string
}

// BucketByDay groups messages by local calendar date. A message whose
// timestamp could not be resolved lands on the run date: that misattributes
// it to "today", but it matches long-standing adapter behavior and beats
// dropping the message.
func BucketByDay(messages []chatdb.Message, today time.Time) map[string][]chatdb.Message {
	byDate := make(map[string][]chatdb.Message)
	for _, msg := range messages {
		day := today.Format(dateLayout)
		if msg.Timestamp != nil {
			day = msg.Timestamp.Format(dateLayout)
		}
		byDate[day] = append(byDate[day], msg)
	}
	return byDate
}

// BuildWindow produces one record per day in the lookback window, newest
// first. Days with zero messages still get a record so the output covers the
// whole window.
func BuildWindow(messages []chatdb.Message, days int, dir contacts.Directory, now time.Time) []DayRecord {
	if days <= 0 {
		days = 1
	}
	byDate := BucketByDay(messages, now)

	records := make([]DayRecord, 0, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		records = append(records, FormatDay(date, byDate[date], dir, now))
	}
	return records
}

// FormatDay renders one calendar day: full detail for known conversations,
// an aggregate note for the rest.
func FormatDay(date string, messages []chatdb.Message, dir contacts.Directory, now time.Time) DayRecord {
	known, unknownConvos, unknownMsgs := GroupByConversation(messages, dir)

	totalMsgs := unknownMsgs
	for _, msgs := range known {
		totalMsgs += len(msgs)
	}

	fm := Frontmatter{
		Type:                      "imessage-daily",
		Date:                      date,
		ConversationCount:         len(known) + unknownConvos,
		MessageCount:              totalMsgs,
		KnownContactConversations: len(known),
		Source:                    "imessage-local",
		LastSynced:                now.Format(time.RFC3339),
		Tags:                      []string{"data", "messages"},
	}

	var body strings.Builder
	fmt.Fprintf(&body, "# Messages — %s\n\n", date)

	if len(messages) == 0 {
		body.WriteString("No messages for this day.\n")
		return DayRecord{Date: date, Frontmatter: fm, Body: body.String()}
	}

	for _, key := range sortedConversationKeys(known) {
		body.WriteString(formatConversation(key, known[key], dir))
		body.WriteString("---\n\n")
	}

	if unknownConvos > 0 {
		fmt.Fprintf(&body, "*%d other conversation(s) with %d message(s)*\n\n", unknownConvos, unknownMsgs)
	}

	return DayRecord{Date: date, Frontmatter: fm, Body: body.String()}
}

// sortedConversationKeys orders known conversations by their earliest
// timestamped message. A conversation with no resolvable timestamps sorts
// before all timestamped ones; key order breaks ties so output is stable.
func sortedConversationKeys(known map[string][]chatdb.Message) []string {
	keys := make([]string, 0, len(known))
	for key := range known {
		keys = append(keys, key)
	}

	earliest := func(msgs []chatdb.Message) time.Time {
		var min time.Time
		for _, m := range msgs {
			if m.Timestamp == nil {
				continue
			}
			if min.IsZero() || m.Timestamp.Before(min) {
				min = *m.Timestamp
			}
		}
		return min
	}

	sort.Slice(keys, func(i, j int) bool {
		ti, tj := earliest(known[keys[i]]), earliest(known[keys[j]])
		if ti.Equal(tj) {
			return keys[i] < keys[j]
		}
		return ti.Before(tj)
	})
	return keys
}

func formatConversation(key string, msgs []chatdb.Message, dir contacts.Directory) string {
	var b strings.Builder

	first := msgs[0]
	if first.IsGroup {
		display := first.ChatDisplayName
		if display == "" {
			display = key
		}
		fmt.Fprintf(&b, "## %s (group)\n", display)
	} else {
		display := key
		if name, ok := dir.Lookup(key); ok {
			display = name
		}
		fmt.Fprintf(&b, "## %s\n", display)
		fmt.Fprintf(&b, "*%s*\n", key)
	}
	b.WriteString("\n")

	for _, msg := range msgs {
		timeStr := "??:??"
		if msg.Timestamp != nil {
			timeStr = msg.Timestamp.Format("15:04")
		}

		var sender string
		switch {
		case msg.IsFromMe:
			sender = "You"
		case msg.IsGroup:
			sender = msg.HandleID
			if name, ok := dir.Lookup(msg.HandleID); ok {
				sender = name
			}
		default:
			sender = key
			if name, ok := dir.Lookup(key); ok {
				sender = name
			}
		}

		serviceTag := ""
		if !strings.EqualFold(msg.Service, "iMessage") {
			serviceTag = fmt.Sprintf(" [%s]", msg.Service)
		}
		fmt.Fprintf(&b, "- **%s** %s%s: %s\n", timeStr, sender, serviceTag, msg.Text)
	}

	b.WriteString("\n")
	return b.String()
}
