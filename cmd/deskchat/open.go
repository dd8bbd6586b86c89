package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"freightdesk/internal/app/widget"
	"freightdesk/internal/infra/realtime"
	"freightdesk/internal/infra/term"
)

var openWithUser string

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVar(&openWithUser, "with", "", "open (or start) the conversation with this user id")
}

// readerGrace bounds how long the panel waits for the input reader to stop
// after closing it. Terminals may not unblock a pending read on close.
const readerGrace = 200 * time.Millisecond

const openHelp = "Type a message and press Enter. /file <path> [caption] attaches a file, /min toggles the panel, /refresh reloads, /quit exits."

var openCmd = &cobra.Command{
	Use:   "open [conversation-id]",
	Short: "Open a conversation and chat interactively",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && openWithUser == "" {
			return fmt.Errorf("pass a conversation id or --with <user-id>")
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		convID := ""
		if len(args) == 1 {
			convID = args[0]
		} else {
			id, created, err := s.client.OpenConversation(ctx, openWithUser)
			if err != nil {
				return err
			}
			if created {
				s.logger.Info("conversation created", "conversation_id", id, "peer_id", openWithUser)
			}
			convID = id
		}
		return runPanel(ctx, s, convID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// panel is the terminal rendition of the floating widget: one open
// conversation, redrawn whenever the widget reports a change.
type panel struct {
	w      *widget.Widget
	convID string
	out    io.Writer

	mu sync.Mutex
	ui widget.UIState
}

// runPanel owns in: when it implements io.Closer it is closed on return.
func runPanel(ctx context.Context, s *session, convID string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wcfg, err := widgetConfig(s.cfg.Widget, os.Getenv)
	if err != nil {
		return err
	}

	rt := realtime.NewClient(s.server, s.self, realtime.WithLogger(s.logger))
	channel := realtime.NewChannel(rt, s.logger)
	defer channel.Close()

	out = &syncWriter{w: out}
	redraw := make(chan struct{}, 1)
	w := widget.New(s.client, widget.Options{
		Self:        s.self,
		SelfName:    s.name,
		Broadcaster: channel,
		Notifier:    term.NewNotifier(out),
		Logger:      s.logger,
		Config:      wcfg,
		OnChange: func() {
			select {
			case redraw <- struct{}{}:
			default:
			}
		},
	})
	defer w.Close()

	channel.Bind(realtime.Handlers{
		OnBroadcast: w.HandleBroadcast,
		OnChange:    w.HandleDurable,
		OnError: func(err error) {
			s.logger.Warn("realtime error", "error", err)
		},
	})

	p := &panel{w: w, convID: convID, out: out}
	p.ui = p.ui.Click(time.Now())

	if err := w.Start(ctx); err != nil {
		s.logger.Warn("conversation list unavailable", "error", err)
	}
	if err := w.SelectConversation(ctx, convID); err != nil {
		return err
	}
	if _, err := channel.Join(ctx, convID); err != nil {
		s.logger.Warn("realtime unavailable, falling back to polling", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-redraw:
				p.render()
			}
		}
	}()
	defer wg.Wait()
	defer cancel()

	fmt.Fprintln(out, openHelp)
	p.render()

	lines := make(chan string)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	// the scanner only sees ctx between lines; closing the input ends a
	// blocked read
	defer func() {
		cancel()
		if c, ok := in.(io.Closer); ok {
			_ = c.Close()
		}
		select {
		case <-readerDone:
		case <-time.After(readerGrace):
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := p.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the panel should close.
func (p *panel) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/q":
		return true
	case line == "/min":
		p.mu.Lock()
		p.ui = p.ui.ToggleMinimized()
		p.mu.Unlock()
		p.render()
	case line == "/refresh":
		if err := p.w.RevalidateMessages(ctx, p.convID); err != nil {
			fmt.Fprintln(p.out, err)
		}
	case strings.HasPrefix(line, "/file "):
		path, caption, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/file ")), " ")
		up, err := readUploadFile(path)
		if err != nil {
			fmt.Fprintln(p.out, err)
			return false
		}
		if err := p.w.Send(ctx, p.convID, caption, up); err != nil {
			fmt.Fprintln(p.out, err)
		}
	default:
		if err := p.w.Send(ctx, p.convID, line, nil); err != nil {
			fmt.Fprintln(p.out, err)
		}
	}
	return false
}

func (p *panel) render() {
	p.mu.Lock()
	ui := p.ui
	p.mu.Unlock()

	title := p.convID
	for _, c := range p.w.Conversations() {
		if c.ID == p.convID {
			peer, isAdmin := p.w.Counterpart(c)
			title = p.w.DisplayName(peer, isAdmin)
			break
		}
	}
	var b strings.Builder
	b.WriteString(term.Header(title, p.w.TotalUnread(), ui))
	if ui.Open && !ui.Minimized {
		b.WriteByte('\n')
		b.WriteString(term.MessageList(p.w.Entries(p.convID), p.w.Self().ID, p.w.Names()))
	}
	fmt.Fprintln(p.out, b.String())
}

// syncWriter serializes the panel and notifier output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
