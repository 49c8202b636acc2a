package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/constants"
	"chatsync/internal/models"
	"chatsync/internal/queue"
	"chatsync/internal/retry"
	"chatsync/internal/service"
	"chatsync/internal/storage"
	"chatsync/internal/tracing"
	"chatsync/pkg/backend"
	"chatsync/pkg/feed"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message content)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	userID     = flag.String("user", "", "Authenticated user id for this session")
	roomID     = flag.String("room", "", "Chat room to join on startup")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatsync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatsync")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	configureLogLevel(logger, cfg.LogLevel)

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the durable slot with exponential backoff; a locked or slow disk
	// at startup should not be fatal on the first try.
	var store *storage.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultStorageRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var openErr error
		store, openErr = storage.New(cfg.Storage.Path)
		if openErr != nil {
			logger.Warnf("Failed to open local storage: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open local storage after retries: %w", err)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	backendClient := backend.NewClientWithLogger(cfg.Backend.BaseURL, cfg.Backend.SessionToken, httpClient, logger)

	if err := backendClient.HealthCheck(ctx); err != nil {
		logger.Warnf("Backend health check failed: %v. Sends will queue until it recovers.", err)
	}

	feedClient := feed.NewClient(cfg.Feed.BaseURL, cfg.Backend.SessionToken, feed.Options{
		HandshakeTimeout: time.Duration(cfg.Feed.HandshakeTimeoutSec) * time.Second,
		PingInterval:     time.Duration(cfg.Feed.PingIntervalSec) * time.Second,
		Logger:           logger,
	})

	pendingQueue := queue.New(*userID, store, logger)
	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)

	session := service.NewChatSession(ctxWithVerbose, *userID, backendClient, feedClient, pendingQueue, *cfg, logger)
	defer session.Close()

	if *roomID != "" {
		if err := session.JoinRoom(*roomID); err != nil {
			return fmt.Errorf("failed to join room %s: %w", *roomID, err)
		}
	}

	var server *Server
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	if cfg.Status.Enabled {
		server = NewServer(cfg.Status, session, logger)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- fmt.Errorf("status server error: %w", err)
			}
		}()
	}

	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		repl(ctxWithVerbose, session, cfg, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	case <-replDone:
		logger.Info("Input closed, shutting down")
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown status server gracefully: %w", err)
		}
	}

	logger.Info("Shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, configured string) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message content will be logged")
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// repl reads line-oriented commands from stdin and drives the session.
func repl(ctx context.Context, session *service.ChatSession, cfg *models.Config, logger *logrus.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: join <room> | leave <room> | send <room> <text> | post <room> <postId> | retry <correlationId> | pending <room> | history <room> | status | quit")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "quit", "exit":
			return

		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <room>")
				continue
			}
			if err := session.JoinRoom(fields[1]); err != nil {
				fmt.Printf("join failed: %v\n", err)
			}

		case "leave":
			if len(fields) < 2 {
				fmt.Println("usage: leave <room>")
				continue
			}
			session.LeaveRoom(fields[1])

		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <room> <text>")
				continue
			}
			result := session.SendMessage(ctx, models.SendInput{
				ChatRoomID: fields[1],
				Content:    fields[2],
				Type:       models.MessageTypeText,
			})
			printSendResult(result)

		case "post":
			if len(fields) < 3 {
				fmt.Println("usage: post <room> <postId>")
				continue
			}
			result := session.SendMessage(ctx, models.SendInput{
				ChatRoomID: fields[1],
				PostID:     fields[2],
				Type:       models.MessageTypePost,
			})
			printSendResult(result)

		case "retry":
			if len(fields) < 2 {
				fmt.Println("usage: retry <correlationId>")
				continue
			}
			if session.RetryMessage(ctx, fields[1]) {
				fmt.Println("retrying")
			} else {
				fmt.Println("no pending message with that correlation id")
			}

		case "pending":
			if len(fields) < 2 {
				fmt.Println("usage: pending <room>")
				continue
			}
			for _, entry := range session.PendingMessages(fields[1]) {
				fmt.Printf("%s  %-8s  retries=%d  %s\n", entry.CorrelationID, entry.Status, entry.RetryCount, entry.LastError)
			}

		case "history":
			if len(fields) < 2 {
				fmt.Println("usage: history <room>")
				continue
			}
			messages, err := session.MergedMessages(ctx, fields[1], cfg.Backend.HistoryLimit)
			if err != nil {
				fmt.Printf("history failed: %v\n", err)
				continue
			}
			for _, msg := range messages {
				marker := msg.ID
				if marker == "" {
					marker = "(pending " + msg.CorrelationID + ")"
				}
				fmt.Printf("%s  %s: %s\n", marker, msg.SenderID, msg.Content)
			}

		case "status":
			fmt.Printf("connected=%v reconnecting=%v err=%v\n", session.IsConnected(), session.IsReconnecting(), session.ConnectionErr())

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}

	if err := scanner.Err(); err != nil {
		logger.WithError(err).Warn("Input scanner error")
	}
}

func printSendResult(result models.SendResult) {
	if !result.Success {
		fmt.Printf("send rejected: %v\n", result.Err)
		return
	}
	fmt.Printf("queued %s\n", result.Message.CorrelationID)
}
