package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"freightdesk/internal/app/widget"
	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/term"
)

var (
	conversationsFilter string
	sendFile            string
)

func init() {
	rootCmd.AddCommand(conversationsCmd, sendCmd, readCmd, cleanupCmd)
	conversationsCmd.Flags().StringVar(&conversationsFilter, "filter", "", "match name, id or last message")
	sendCmd.Flags().StringVar(&sendFile, "file", "", "attach a JPEG, PNG or PDF file")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations with unread counts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		w := widget.New(s.client, widget.Options{Self: s.self, Logger: s.logger})
		defer w.Close()
		if err := w.Start(cmd.Context()); err != nil {
			return err
		}
		convs := w.FilteredConversations(conversationsFilter)
		out := cmd.OutOrStdout()
		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations")
			return nil
		}
		fmt.Fprintln(out, term.ConversationTable(convs, s.self.ID, w.Names(), time.Now()))
		if unread := w.TotalUnread(); unread > 0 {
			fmt.Fprintf(out, "Unread: %s\n", term.Badge(unread))
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> [message]",
	Short: "Send one message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		msg := chat.OutgoingMessage{ConversationID: args[0], ClientID: fmt.Sprintf("%s%d-1", chat.TempIDPrefix, time.Now().UnixMilli())}
		if len(args) == 2 {
			msg.Body = strings.TrimSpace(args[1])
		}
		if sendFile != "" {
			up, err := readUploadFile(sendFile)
			if err != nil {
				return err
			}
			msg.Upload = up
		}
		if msg.Body == "" && msg.Upload == nil {
			return chat.ErrEmptyMessage
		}
		receipt, err := s.client.SendMessage(cmd.Context(), msg)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s at %s\n", receipt.ID, receipt.CreatedAt.Local().Format(time.Kitchen))
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		if err := s.client.MarkRead(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Marked read")
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove conversations with yourself",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		n, err := s.client.CleanupSelfConversations(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d conversation(s)\n", n)
		return nil
	},
}

// readUploadFile loads path as an attachment. The content type comes from the
// extension, falling back to sniffing.
func readUploadFile(path string) (*chat.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	up := &chat.Upload{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if err := up.Validate(); err != nil {
		return nil, err
	}
	return up, nil
}
