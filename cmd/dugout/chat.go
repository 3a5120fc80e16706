package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dugoutlabs/dugout-client/internal/app"
	"github.com/dugoutlabs/dugout-client/internal/chat"
	"github.com/dugoutlabs/dugout-client/internal/proto"
	"github.com/dugoutlabs/dugout-client/internal/session"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		roomID   int64
		roomName string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a meetup room chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, session.Hooks{
				OnSessionExpired: func(notice string) {
					fmt.Println(notice)
				},
			}, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Session.TryAutoLogin(ctx); err != nil {
				if errors.Is(err, session.ErrNoStoredSession) {
					return errors.New("not signed in, run `dugout login` first")
				}
				return err
			}

			conn, err := application.OpenRoom(ctx, roomID, roomName, 0, chat.Handlers{
				OnMessage: func(msg chat.Message) {
					fmt.Printf("[%s] %s\n", msg.Sender, msg.Text)
				},
				OnPresence: func(event, nickname string) {
					switch event {
					case proto.EventEnter:
						fmt.Printf("* %s joined\n", nickname)
					case proto.EventLeave:
						fmt.Printf("* %s left\n", nickname)
					}
				},
				OnStateChange: func(state chat.ConnState) {
					fmt.Printf("* connection %s\n", state)
				},
			})
			if err != nil {
				return err
			}
			defer application.CloseRoom(roomID)

			fmt.Printf("Joined room %d. Type messages and press Enter to send. Ctrl+C to exit.\n", roomID)
			readStdin(ctx, conn)
			return nil
		},
	}

	cmd.Flags().Int64Var(&roomID, "room", 0, "meetup room id")
	cmd.Flags().StringVar(&roomName, "name", "", "room display name")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func readStdin(ctx context.Context, conn *chat.Connection) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := conn.Send(ctx, text); err != nil {
				if errors.Is(err, chat.ErrNotConnected) {
					fmt.Println("* not connected, message dropped")
					continue
				}
				fmt.Printf("* send failed: %v\n", err)
			}
		}
	}
}
