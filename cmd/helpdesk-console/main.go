// ABOUTME: Terminal console for support agents: session list, chat view and force-close.
// ABOUTME: Provides readline-style input over the session core with live push updates.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/helpdesk-console/internal/api"
	"github.com/2389/helpdesk-console/internal/config"
	"github.com/2389/helpdesk-console/internal/conn"
	"github.com/2389/helpdesk-console/internal/console"
	"github.com/2389/helpdesk-console/internal/identity"
	"github.com/2389/helpdesk-console/internal/journal"
	"github.com/2389/helpdesk-console/internal/notify"
	"github.com/2389/helpdesk-console/internal/registry"
	"github.com/2389/helpdesk-console/internal/stream"
	"github.com/2389/helpdesk-console/internal/transcript"
	"github.com/2389/helpdesk-console/internal/wire"
)

var (
	userColor   = color.New(color.FgBlue)
	agentColor  = color.New(color.FgGreen)
	alertColor  = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
	mutedColor  = color.New(color.Faint)
	unreadColor = color.New(color.FgCyan, color.Bold)
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	token := flag.String("token", "", "Access token (overrides config and HELPDESK_TOKEN)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		cfg.Auth.Token = *token
	}

	setupLogging(cfg.Logging)

	ident, err := identity.FromToken(cfg.Auth.Token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if ident.Expired(time.Now()) {
		fmt.Fprintln(os.Stderr, "Error: access token has expired; sign in again")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, ident); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// setupLogging configures the global slog logger from config.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg *config.Config, ident *identity.Identity) error {
	logger := slog.Default()

	client := api.New(cfg.Server.APIBase, cfg.Auth.Token, logger)

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		var err error
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer jnl.Close()
	}

	var sessionArchiver registry.Archiver
	var messageArchiver stream.Archiver
	if jnl != nil {
		sessionArchiver = jnl
		messageArchiver = jnl
	}

	manager := conn.NewManager(conn.Options{
		WSBase:         cfg.Server.WSBase,
		AgentID:        ident.AgentID,
		Token:          cfg.Auth.Token,
		ReconnectDelay: cfg.Timing.ReconnectDelay,
		MaxAttempts:    cfg.Timing.MaxReconnectAttempts,
		Logger:         logger,
	})
	defer manager.Close()

	reg := registry.New(ident.AgentID, client, sessionArchiver, cfg.Timing.SessionPollInterval, logger)
	str := stream.New(ident.AgentID, client, manager, messageArchiver, cfg.Timing.BackstopInterval, logger)
	relay := notify.New(cfg.Timing.AlertDismiss, reg, logger)

	cons := console.New(console.Options{
		AgentID:             ident.AgentID,
		Backend:             client,
		Frames:              manager,
		Registry:            reg,
		Stream:              str,
		Relay:               relay,
		TimeoutPollInterval: cfg.Timing.TimeoutPollInterval,
		Logger:              logger,
	})

	// Seed the session list from the journal so the console is usable
	// before the first poll lands.
	if jnl != nil {
		if cached, err := jnl.LoadSessions(ctx); err == nil && len(cached) > 0 {
			reg.Seed(cached)
			mutedColor.Printf("Loaded %d cached sessions\n", len(cached))
		}
	}

	manager.OnStateChange(func(state conn.State, err error) {
		switch {
		case err != nil:
			errorColor.Printf("\n[connection] %s: %v\n", state, err)
			if err == conn.ErrReconnectExhausted {
				alertColor.Println("[connection] use /reconnect to try again")
			}
		case state == conn.StateConnected:
			mutedColor.Println("\n[connection] connected")
		}
	})

	relay.OnAlert(func(a notify.Alert) {
		alertColor.Printf("\n[alert] %s\n", a.Message)
	})

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting connection: %w", err)
	}
	go cons.Run(ctx)

	fmt.Printf("helpdesk-console signed in as %s\n", ident.AgentID)
	fmt.Println("Type a message and press Enter to reply in the open session.")
	fmt.Println("/help for commands. Ctrl+C to quit.")
	fmt.Println()

	return repl(ctx, cons, reg, str, manager)
}

func repl(ctx context.Context, cons *console.Console, reg *registry.Registry, str *stream.Stream, manager *conn.Manager) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if selected := str.Selected(); selected != "" {
			fmt.Printf("[%s]> ", selected)
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			if err := handleCommand(ctx, input, cons, reg, str, manager, scanner); err != nil {
				errorColor.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		// Plain text replies in the open session
		msg, err := cons.SendMessage(input)
		if err != nil {
			errorColor.Printf("[error] %v\n", err)
		} else {
			agentColor.Printf("← %s\n", msg.Content)
		}
		fmt.Println()
	}
}

func handleCommand(ctx context.Context, input string, cons *console.Console, reg *registry.Registry, str *stream.Stream, manager *conn.Manager, scanner *bufio.Scanner) error {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		printHelp()
		return nil

	case "/sessions":
		printSessions(reg)
		return nil

	case "/open":
		if args == "" {
			return fmt.Errorf("usage: /open <chat_id>")
		}
		if err := cons.SelectSession(ctx, args); err != nil {
			return err
		}
		printMessages(str)
		return nil

	case "/close":
		cons.ClearSelection()
		fmt.Println("Closed session view")
		return nil

	case "/messages":
		if str.Selected() == "" {
			return fmt.Errorf("no session open; use /open <chat_id>")
		}
		printMessages(str)
		return nil

	case "/status":
		return printStatus(cons, manager)

	case "/end":
		return endChat(ctx, cons, str, scanner)

	case "/online":
		if err := cons.SetOnline(ctx); err != nil {
			return err
		}
		fmt.Println("You are online")
		return nil

	case "/offline":
		if err := cons.SetOffline(ctx); err != nil {
			return err
		}
		fmt.Println("You are offline")
		return nil

	case "/alerts":
		printAlerts(cons)
		return nil

	case "/export":
		if args == "" {
			return fmt.Errorf("usage: /export <path>")
		}
		return exportTranscript(reg, str, args)

	case "/reconnect":
		if err := manager.Start(ctx); err != nil {
			return err
		}
		fmt.Println("Reconnecting...")
		return nil

	default:
		return fmt.Errorf("unknown command %s; /help for commands", cmd)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /sessions        List sessions with unread counts")
	fmt.Println("  /open <chat_id>  Open a session and show its messages")
	fmt.Println("  /messages        Re-print the open session's messages")
	fmt.Println("  /close           Close the open session view")
	fmt.Println("  /status          Show connection and timeout status")
	fmt.Println("  /end             Force-close the open session (asks to confirm)")
	fmt.Println("  /online          Mark yourself available")
	fmt.Println("  /offline         Mark yourself unavailable")
	fmt.Println("  /alerts          Show active notifications")
	fmt.Println("  /export <path>   Write the open session's transcript as HTML")
	fmt.Println("  /reconnect       Redial after the retry budget is spent")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit")
}

func printSessions(reg *registry.Registry) {
	sessions := reg.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return
	}

	fmt.Printf("Sessions (%d, %d unread):\n", len(sessions), reg.TotalUnread())
	for _, s := range sessions {
		name := s.UserDisplayName
		if name == "" {
			name = s.UserID
		}
		line := fmt.Sprintf("  %s  %s  %s", s.ChatID, name, s.CreatedAt.Format("Jan 02 15:04"))
		if s.IsEnded {
			mutedColor.Printf("%s  [ended]\n", line)
			continue
		}
		if s.UnreadCount > 0 {
			fmt.Print(line)
			unreadColor.Printf("  (%d unread)\n", s.UnreadCount)
			continue
		}
		fmt.Println(line)
	}
}

func printMessages(str *stream.Stream) {
	messages := str.Messages()
	if len(messages) == 0 {
		fmt.Println("No messages yet")
		return
	}
	for _, m := range messages {
		c := userColor
		arrow := "→"
		if m.SenderType == wire.SenderCustomerService {
			c = agentColor
			arrow = "←"
		}
		c.Printf("%s %s  ", arrow, m.CreatedAt.Format("15:04:05"))
		fmt.Println(m.Content)
	}
}

func printStatus(cons *console.Console, manager *conn.Manager) error {
	fmt.Printf("Connection: %s\n", manager.State())

	chatID, running := cons.MonitorFor()
	if !running {
		fmt.Println("Timeout monitor: not running")
		return nil
	}
	fmt.Printf("Timeout monitor: watching %s\n", chatID)

	status := cons.TimeoutStatus()
	if status == nil {
		fmt.Println("Timeout status: not fetched yet")
		return nil
	}
	switch {
	case status.IsEnded:
		fmt.Println("Timeout status: session already ended")
	case status.IsTimeout:
		alertColor.Println("Timeout status: eligible for /end")
	default:
		fmt.Println("Timeout status: active")
	}
	if status.TimeSinceLastMessage != nil {
		fmt.Printf("Silent for: %.0fs\n", *status.TimeSinceLastMessage)
	}
	return nil
}

func endChat(ctx context.Context, cons *console.Console, str *stream.Stream, scanner *bufio.Scanner) error {
	chatID := str.Selected()
	if chatID == "" {
		return fmt.Errorf("no session open; use /open <chat_id>")
	}
	fmt.Printf("Force-close session %s? [y/N] ", chatID)
	if !scanner.Scan() {
		return nil
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "y" && answer != "yes" {
		fmt.Println("Cancelled")
		return nil
	}

	if err := cons.TimeoutEndChat(ctx); err != nil {
		return err
	}
	fmt.Println("Session closed")
	return nil
}

func printAlerts(cons *console.Console) {
	alerts := cons.Alerts()
	if len(alerts) == 0 {
		fmt.Println("No active alerts")
		return
	}
	for _, a := range alerts {
		alertColor.Printf("  %s  %s\n", a.CreatedAt.Format("15:04:05"), a.Message)
	}
}

func exportTranscript(reg *registry.Registry, str *stream.Stream, path string) error {
	chatID := str.Selected()
	if chatID == "" {
		return fmt.Errorf("no session open; use /open <chat_id>")
	}
	session, ok := reg.Get(chatID)
	if !ok {
		return fmt.Errorf("unknown session %q", chatID)
	}
	if err := transcript.WriteFile(path, session, str.Messages()); err != nil {
		return err
	}
	fmt.Printf("Wrote transcript to %s\n", path)
	return nil
}
