package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
	"github.com/spf13/cobra"
)

var (
	chatSendImage string
	chatSendWait  time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&chatSendImage, "image", "", "Attachment reference to send along with the text")
	sendCmd.Flags().DurationVar(&chatSendWait, "wait", 15*time.Second, "How long to wait for server confirmation")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
}

// ============================================================================
// chat (interactive)
// ============================================================================

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the global chat from the terminal",
	Long: "Open an interactive chat session. Lines you type are sent to the global\n" +
		"room; incoming messages print as they arrive.\n\n" +
		"Slash commands: /users <query>, /online, /stats, /refresh, /quit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		engine, cfg, err := startSession(ctx)
		if err != nil {
			return err
		}
		defer engine.Close()

		printer := &chatPrinter{selfID: cfg.Auth.UserID}
		engine.On(ryazhenka.EventSyncComplete, func(_ string, _ any) {
			printer.printNew(engine.RecentWindow(50))
		})
		engine.On(ryazhenka.EventMessageFailed, func(_ string, payload any) {
			m := payload.(map[string]any)
			fmt.Printf("!! message not delivered (%v)\n", m["error"])
		})
		engine.On(ryazhenka.EventSyncError, func(_ string, payload any) {
			printer.connectionLost(fmt.Sprint(payload))
		})

		session, _ := engine.Session()
		fmt.Printf("Connected as %s. Type a message, or /quit to leave.\n", session.DisplayName)
		engine.RequestRefresh()

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nLeaving chat.")
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if strings.HasPrefix(line, "/") {
					if quit := runSlashCommand(ctx, engine, line); quit {
						return nil
					}
					continue
				}
				if _, err := engine.SubmitMessage(line); err != nil {
					fmt.Printf("!! %v\n", err)
				}
			}
		}
	},
}

// runSlashCommand handles in-chat commands; returns true on /quit.
func runSlashCommand(ctx context.Context, engine *ryazhenka.Engine, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		fmt.Println("Leaving chat.")
		return true
	case "/refresh":
		engine.RequestRefresh()
	case "/users":
		if len(fields) < 2 {
			fmt.Println("usage: /users <query>")
			return false
		}
		query := strings.Join(fields[1:], " ")
		results, err := engine.SearchUsers(ctx, query)
		if err != nil {
			fmt.Printf("!! search failed: %v\n", err)
			return false
		}
		if len(results) == 0 {
			fmt.Printf("No users matching %q.\n", query)
			return false
		}
		for _, u := range results {
			fmt.Printf("  %s (%s) [%s]\n", u.DisplayName, u.UserID, u.Status)
		}
	case "/online":
		users, err := engine.OnlineUsers(ctx)
		if err != nil {
			fmt.Printf("!! %v\n", err)
			return false
		}
		fmt.Printf("%d online:\n", len(users))
		for _, u := range users {
			fmt.Printf("  %s\n", u.DisplayName)
		}
	case "/stats":
		stats, err := engine.Stats(ctx)
		if err != nil {
			fmt.Printf("!! %v\n", err)
			return false
		}
		fmt.Printf("users: %d  online: %d  messages: %d\n", stats.TotalUsers, stats.OnlineUsers, stats.TotalMessages)
	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

// chatPrinter prints messages exactly once as they land in the window.
type chatPrinter struct {
	mu      sync.Mutex
	selfID  string
	seen    map[string]bool
	offline bool
}

func (p *chatPrinter) printNew(window []ryazhenka.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	if p.offline {
		p.offline = false
		fmt.Println("-- connection restored --")
	}
	for _, m := range window {
		key := m.ID
		if key == "" {
			key = m.LocalRef
		}
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		if m.AuthorID == p.selfID {
			continue
		}
		ts := m.CreatedAt.Local().Format("15:04")
		if m.AttachmentRef != "" {
			fmt.Printf("[%s] %s: %s (attachment: %s)\n", ts, m.AuthorName, m.Body, m.AttachmentRef)
			continue
		}
		fmt.Printf("[%s] %s: %s\n", ts, m.AuthorName, m.Body)
	}
}

func (p *chatPrinter) connectionLost(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline {
		return
	}
	p.offline = true
	fmt.Printf("-- connection lost (%s), retrying --\n", status)
}

// ============================================================================
// send (one-shot)
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a single message and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		engine, _, err := startSession(context.Background())
		if err != nil {
			return err
		}
		defer engine.Close()

		done := make(chan error, 1)
		engine.On(ryazhenka.EventMessageConfirmed, func(_ string, _ any) {
			done <- nil
		})
		engine.On(ryazhenka.EventMessageFailed, func(_ string, payload any) {
			m := payload.(map[string]any)
			done <- fmt.Errorf("message not delivered: %v", m["error"])
		})

		if _, err := engine.SubmitAttachment(text, chatSendImage); err != nil {
			return err
		}

		select {
		case err := <-done:
			if err != nil {
				return err
			}
			fmt.Println("Delivered.")
			return nil
		case <-time.After(chatSendWait):
			return fmt.Errorf("no confirmation after %s", chatSendWait)
		}
	},
}
