// Command rtchat is a terminal chat client for RunTogether event chats and
// private threads.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CUknot/runtogether/client"
	"github.com/CUknot/runtogether/feed"
	"github.com/CUknot/runtogether/models"
	tea "github.com/charmbracelet/bubbletea"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	server := flag.String("server", envOr("RTCHAT_SERVER", "http://localhost:8080"), "RunTogether API base URL")
	email := flag.String("email", os.Getenv("RTCHAT_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("RTCHAT_PASSWORD"), "account password")
	eventID := flag.Uint("event", 0, "open the chat of this event")
	userID := flag.Uint("user", 0, "open the private thread with this user")
	logFile := flag.String("log", "", "write logs to this file")
	flag.Parse()

	if (*eventID == 0) == (*userID == 0) {
		fmt.Fprintln(os.Stderr, "rtchat: exactly one of -event or -user is required")
		flag.Usage()
		os.Exit(2)
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "rtchat: -email and -password are required")
		os.Exit(2)
	}

	if *logFile != "" {
		f, err := tea.LogToFile(*logFile, "rtchat")
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
	} else {
		// stderr would draw over the alt screen.
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *email, *password, *eventID, *userID); err != nil {
		log.Printf("rtchat: %v", err)
		fmt.Fprintf(os.Stderr, "rtchat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, server, email, password string, eventID, userID uint) error {
	c := client.New(server, nil)
	session, err := c.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if session.Next == models.NextProfile {
		log.Printf("profile for %s is incomplete; finish it to show up by name", session.Email)
	}

	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		f     *feed.Feed
		title string
	)
	if eventID != 0 {
		event, err := c.Event(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}
		f, title = c.EventFeed(conn, eventID), event.Title
	} else {
		other, err := c.UserProfile(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		name := other.Name
		if name == "" {
			name = other.Username
		}
		if name == "" {
			name = feed.AnonymousName
		}
		f, title = c.PrivateFeed(conn, userID), "Chat with "+name
	}

	if err := f.Open(ctx); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	defer f.Close()

	p := tea.NewProgram(NewChatPage(ctx, f, title, session.UserID), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
