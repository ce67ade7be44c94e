package main

import (
	"bufio"
	"chat-relay/api"
	"chat-relay/domain"
	"chat-relay/infrastructure/grpc/client"
	"chat-relay/projection"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string        `env:"CHAT_SERVER_ADDR,default=localhost:9090"`
	Username       string        `env:"CHAT_USERNAME,required=true"`
	Password       string        `env:"CHAT_PASSWORD,required=true"`
	Register       bool          `env:"CHAT_REGISTER,default=false"`
	RoomID         string        `env:"CHAT_ROOM_ID"`
	PeerID         string        `env:"CHAT_PEER_ID"`
	HistorySize    int           `env:"CHAT_HISTORY_SIZE,default=25"`
	ReconnectDelay time.Duration `env:"CHAT_RECONNECT_DELAY,default=1s"`
	LogLevel       string        `env:"LOG_LEVEL,default=WARN"`
}

var (
	infoStyle    = color.New(color.FgCyan, color.OpBold)
	messageStyle = color.New(color.FgGreen)
	pendingStyle = color.New(color.FgDarkGray)
	searchStyle  = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed)
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run signs in, joins the room and then reads lines from stdin.
// "/search <text>" searches the room; any other line is sent as a message.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.RoomID == "" && config.PeerID == "" {
		return exitConfig, errors.New("either CHAT_ROOM_ID or CHAT_PEER_ID must be set")
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = c.Close()
	}()

	signIn := c.Login
	if config.Register {
		signIn = c.Register
	}
	me, err := signIn(ctx, config.Username, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("sign in failed: %w", err)
	}

	roomID := config.RoomID
	if roomID == "" {
		room, err := c.GetOrCreateRoom(ctx, config.PeerID)
		if err != nil {
			return exitRuntime, fmt.Errorf("could not open room with %s: %w", config.PeerID, err)
		}
		roomID = room.ID
	}
	infoStyle.Printf(">>> %s in room %s (Ctrl+C to quit)\n", me.Username, roomID)

	timeline := projection.NewTimeline(c.UserID())
	go follow(ctx, log, c, timeline, roomID, config)

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
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			handleLine(ctx, c, timeline, roomID, line)
		}
	}
}

func handleLine(ctx context.Context, c *client.ChatClient, timeline *projection.Timeline, roomID, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if query, ok := strings.CutPrefix(line, "/search "); ok {
		found, err := c.Search(ctx, roomID, query, 10)
		if err != nil {
			errorStyle.Printf("search failed: %v\n", err)
			return
		}
		for _, m := range found {
			searchStyle.Printf("  %s %s: %s\n", m.SentAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
		}
		return
	}
	pending := timeline.Send(line)
	pendingStyle.Printf("  (pending #%d) %s\n", pending.Seq, pending.Content)
	if _, err := c.StoreMessage(ctx, roomID, line); err != nil {
		errorStyle.Printf("send failed: %v\n", err)
	}
}

// follow keeps the subscription open. After a broken stream it reloads the
// latest history before subscribing again.
func follow(ctx context.Context, log *slog.Logger, c *client.ChatClient, timeline *projection.Timeline,
	roomID string, config Config) {
	for ctx.Err() == nil {
		history, err := c.RoomMessages(ctx, api.PageRequest{RoomID: roomID, Last: lo.ToPtr(config.HistorySize)})
		if err == nil {
			timeline.Reset(lo.Map(history.Nodes(), func(m api.Message, _ int) domain.Message { return m.ToDomain() }))
			for _, m := range history.Nodes() {
				printMessage(m)
			}
			err = subscribe(ctx, c, timeline, roomID)
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("Subscription lost, reconnecting", "room_id", roomID, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(config.ReconnectDelay):
		}
	}
}

func subscribe(ctx context.Context, c *client.ChatClient, timeline *projection.Timeline, roomID string) error {
	stream, err := c.Subscribe(ctx, roomID)
	if err != nil {
		return err
	}
	for {
		m, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return errors.New("stream closed by server")
		}
		if err != nil {
			return err
		}
		if timeline.Observe(m.ToDomain()) {
			printMessage(*m)
		}
	}
}

func printMessage(m api.Message) {
	messageStyle.Printf("%s %s: %s\n", m.SentAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
}
