// Package conversation holds chat history and the port it is persisted
// through.
package conversation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// titleLength is the number of characters of the first prompt kept as title.
const titleLength = 50

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Thinking  string    `json:"thinkingContent,omitempty"`
	// Streaming is set on an assistant message while its answer is arriving.
	Streaming bool `json:"isStreaming,omitempty"`
}

type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Model        string    `json:"model"`
}

// LastMessage returns the last message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// NewID returns an ID like "conv_1718000000000_a1b2c3d4e".
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("conv_%d_%s", now.UnixMilli(), suffix)
}

// Title derives a conversation title from its first prompt.
func Title(firstMessage string) string {
	firstMessage = strings.TrimSpace(firstMessage)
	if utf8.RuneCountInString(firstMessage) <= titleLength {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return strings.TrimSpace(string(runes[:titleLength])) + "..."
}

// RelativeDate describes t relative to now for history listings.
func RelativeDate(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	// Same rounding as counting started days: anything under 24 hours is today.
	days := int(diff/(24*time.Hour)) + 1
	switch {
	case days == 1:
		return "Today"
	case days == 2:
		return "Yesterday"
	case days <= 7:
		return fmt.Sprintf("%d days ago", days-1)
	}
	return t.Local().Format("2006-01-02")
}
