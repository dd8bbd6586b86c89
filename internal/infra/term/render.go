// Package term renders widget state for the terminal client.
package term

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"freightdesk/internal/app/reconcile"
	"freightdesk/internal/app/widget"
	"freightdesk/internal/domain/chat"
)

// Namer resolves display names; *widget.Names satisfies it.
type Namer interface {
	Resolve(id string, isAdmin bool) string
}

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	peerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	badgeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("99"))
	previewLimit = 48
)

// ConversationTable renders the conversation list with counterpart names and
// unread counts.
func ConversationTable(convs []chat.Conversation, selfID string, names Namer, now time.Time) string {
	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		peer := c.Counterpart(selfID)
		rows = append(rows, []string{
			c.ID,
			names.Resolve(peer, c.CounterpartRole(selfID).IsAdmin()),
			string(c.CounterpartRole(selfID)),
			chat.Snippet(c.LastMessage, previewLimit),
			unreadCell(c.UnreadCount),
			Relative(c.LastActivity(), now),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "Name", "Role", "Last message", "Unread", "Active").
		Rows(rows...)
	return t.String()
}

func unreadCell(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// MessageList renders a conversation cache one message per line. Unconfirmed
// entries are marked so the user can tell them apart from stored ones.
func MessageList(entries []reconcile.Entry, selfID string, names Namer) string {
	if len(entries) == 0 {
		return mutedStyle.Render("No messages yet")
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		m := e.Message
		sender := names.Resolve(m.SenderID, m.SenderRole.IsAdmin())
		style := peerStyle
		if m.SenderID == selfID {
			sender = "You"
			style = selfStyle
		}
		fmt.Fprintf(&b, "%s %s: %s", mutedStyle.Render(m.CreatedAt.Local().Format("15:04")), style.Render(sender), m.Body)
		if m.Attachment != nil {
			if m.Body != "" {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "[📎 %s]", m.Attachment.Name)
		}
		if mark := status(e); mark != "" {
			b.WriteString(" " + mutedStyle.Render(mark))
		}
	}
	return b.String()
}

func status(e reconcile.Entry) string {
	switch {
	case e.Pending:
		return "(sending)"
	case e.Origin == reconcile.OriginBroadcast:
		return "(live)"
	default:
		return ""
	}
}

// Header is the panel title line: the open conversation, the unread badge
// and the minimized marker.
func Header(title string, unread int, ui widget.UIState) string {
	parts := []string{title}
	if unread > 0 {
		parts = append(parts, Badge(unread))
	}
	if ui.Minimized {
		parts = append(parts, mutedStyle.Render("[minimized]"))
	}
	return headerStyle.Render(strings.Join(parts, " "))
}

// Badge renders the unread counter, capped at 99+.
func Badge(unread int) string {
	if unread <= 0 {
		return ""
	}
	label := strconv.Itoa(unread)
	if unread > 99 {
		label = "99+"
	}
	return badgeStyle.Render(label)
}

// Relative formats t as a short age relative to now.
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return t.Local().Format("Jan 2")
	}
}
