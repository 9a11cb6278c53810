package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/pkg/logger"
	"github.com/spf13/cobra"
)

const dialTimeout = 10 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect to a running arena stream and log every event",
	Long: `Watch dials the /ws endpoint of a running arena and logs each event it
receives. With --count it exits after that many events.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, _ := cmd.Flags().GetString("url")
		count, _ := cmd.Flags().GetInt("count")
		format, _ := cmd.Flags().GetString("log-format")

		if err := logger.InitWith(os.Stdout, format); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		n, err := watch(ctx, url, count)
		logger.Get().Info(ctx, "watch finished", logger.Int("events", n))
		return err
	},
}

func init() {
	watchCmd.Flags().String("url", "ws://localhost:8000/ws", "stream endpoint")
	watchCmd.Flags().Int("count", 0, "exit after this many events (0 = until interrupted)")
	watchCmd.Flags().String("log-format", logger.FormatConsole, "console or json")
}

// watch reads events from url until ctx ends, count events arrived or the
// server goes away. It returns the number of events decoded.
func watch(ctx context.Context, url string, count int) (int, error) {
	log := logger.Named("watch")

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = ws.Close() }()

	// Unblock ReadMessage on interrupt.
	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	log.Info(ctx, "connected", logger.String("url", url))
	n := 0
	for count == 0 || n < count {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return n, nil
			}
			return n, fmt.Errorf("read: %w", err)
		}
		env, err := event.Decode(data)
		if err != nil {
			log.Warn(ctx, "undecodable frame", logger.Error(err), logger.Int("bytes", len(data)))
			continue
		}
		n++
		log.Info(ctx, "event",
			logger.String("id", env.ID),
			logger.String("type", string(env.Kind)),
			logger.Any("occurred_at", env.OccurredAt),
			logger.Any("data", env.Payload),
		)
	}
	return n, nil
}
