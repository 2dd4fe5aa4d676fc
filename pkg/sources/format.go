package sources

import (
	"fmt"
	"strings"

	"github.com/doxen-app/doxen/pkg/types"
)

const slackTimeLayout = "Jan 2, 2006, 03:04 PM"

// FormatGmailThread renders a thread as a single document.
func FormatGmailThread(thread *types.GmailThread, account string) string {
	messages := make([]string, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		messages = append(messages, fmt.Sprintf("From: %s\nDate: %s\n\n%s", m.From, m.Date, m.Body))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Gmail Thread: %s\n", thread.Subject)
	fmt.Fprintf(&b, "Messages: %d\n", len(thread.Messages))
	fmt.Fprintf(&b, "Account: %s\n\n", account)
	b.WriteString(strings.Join(messages, "\n\n---\n\n"))
	return b.String()
}

// FormatGmailEmail renders a single message as a document.
func FormatGmailEmail(email *types.GmailEmail, account string) string {
	return fmt.Sprintf("Gmail Email: %s\nFrom: %s\nDate: %s\nAccount: %s\n\n%s",
		email.Subject, email.From, email.Date, account, email.Body)
}

// FormatSlackLines renders each message as "[time] sender: text".
func FormatSlackLines(messages []types.SlackMessage) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.UTC().Format(slackTimeLayout), m.Sender, m.Text))
	}
	return lines
}

// FormatSlackChannel renders formatted lines under a channel header.
func FormatSlackChannel(channelName string, lines []string) string {
	return fmt.Sprintf("Slack Channel: #%s\nMessages imported: %d\n\n%s", channelName, len(lines), strings.Join(lines, "\n"))
}
