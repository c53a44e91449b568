// Command client is a line-oriented terminal client for the relay.
//
//	text            sends a message
//	/file <path>    uploads a file
//	/get <file_id>  asks for a download URL and saves the bytes
//	/read <id>      marks a message as read
//	/ping
package main

import (
	"bufio"
	"context"
	"feedback-relay/client"
	"feedback-relay/domain/event"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

type Config struct {
	RelayAddr   string `envconfig:"RELAY_ADDR" default:"localhost:8888"`
	Username    string `envconfig:"RELAY_USERNAME" required:"true"`
	DownloadDir string `envconfig:"RELAY_DOWNLOAD_DIR" default:"."`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, config.RelayAddr, config.Username)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = c.Close()
	}()

	color.Green.Printf(">>> Connected to %s as %s (Ctrl+C to quit)\n", config.RelayAddr, c.Welcome.User.Username)
	for _, entry := range c.Welcome.RecentMessages {
		printHistory(entry)
	}

	go readInput(ctx, c, config, stop)

	for {
		frame, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if err = handle(ctx, c, config, frame); err != nil {
			color.Red.Printf("!! %v\n", err)
		}
	}
}

func readInput(ctx context.Context, c *client.Client, config Config, stop context.CancelFunc) {
	defer stop()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := command(ctx, c, line); err != nil {
			color.Red.Printf("!! %v\n", err)
		}
	}
}

func command(ctx context.Context, c *client.Client, line string) error {
	verb, arg, _ := strings.Cut(line, " ")
	switch verb {
	case "/file":
		data, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		return c.SendFile(ctx, filepath.Base(arg), data)
	case "/get":
		return c.RequestDownload(ctx, arg)
	case "/read":
		return c.MarkRead(ctx, arg)
	case "/ping":
		return c.Ping(ctx)
	default:
		return c.SendText(ctx, line)
	}
}

func handle(ctx context.Context, c *client.Client, config Config, frame client.Frame) error {
	switch frame.Type {
	case event.TypeNewMessage:
		var m event.NewMessage
		if err := frame.Decode(&m); err != nil {
			return err
		}
		fmt.Printf("%s %s: %s %s\n", color.Gray.Sprint(m.Timestamp), color.Cyan.Sprint(m.Username), m.Content,
			color.Gray.Sprintf("[%s %d/%d]", m.ID, m.ReadByCount, m.TotalUsers))
	case event.TypeFile:
		var f event.FileShared
		if err := frame.Decode(&f); err != nil {
			return err
		}
		fmt.Printf("%s %s shared %s (%d bytes) %s\n", color.Gray.Sprint(f.Timestamp), color.Cyan.Sprint(f.Username),
			color.Magenta.Sprint(f.Name), f.Size, color.Gray.Sprintf("[%s]", f.ID))
	case event.TypeFileDownloadURL:
		var d event.FileDownloadURL
		if err := frame.Decode(&d); err != nil {
			return err
		}
		data, err := c.Fetch(ctx, d.URL)
		if err != nil {
			return err
		}
		path := filepath.Join(config.DownloadDir, filepath.Base(d.Name))
		if err = os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		color.Green.Printf("saved %s (%d bytes)\n", path, len(data))
	case event.TypeReadStatusUpdate:
		var r event.ReadStatusUpdate
		if err := frame.Decode(&r); err != nil {
			return err
		}
		color.Gray.Printf("%s read by %d/%d\n", r.MessageID, r.ReadByCount, r.TotalUsers)
	case event.TypeUserOnline, event.TypeUserOffline:
		var p event.Presence
		if err := frame.Decode(&p); err != nil {
			return err
		}
		color.Yellow.Printf("* %s %s\n", p.Username, strings.TrimPrefix(p.Type, "user_"))
	case event.TypeError:
		var e event.Error
		if err := frame.Decode(&e); err != nil {
			return err
		}
		color.Red.Printf("!! %s\n", e.Message)
	case event.TypePong:
		color.Gray.Println("pong")
	}
	return nil
}

func printHistory(entry event.HistoryEntry) {
	switch entry.Type {
	case event.TypeHistoryMessage:
		fmt.Printf("%s %s: %s\n", color.Gray.Sprint(entry.Timestamp), color.Cyan.Sprint(entry.Username), entry.Content)
	default:
		fmt.Printf("%s %s shared %s\n", color.Gray.Sprint(entry.Timestamp), color.Cyan.Sprint(entry.Username), color.Magenta.Sprint(entry.Name))
	}
}
