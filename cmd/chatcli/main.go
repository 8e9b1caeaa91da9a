package main

import (
	"bufio"
	"carchat/backend/internal/chatclient"
	"carchat/backend/internal/config"
	"carchat/backend/internal/history"
	"carchat/backend/internal/models"
	"carchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const usage = `Usage: chatcli <command> [args]

Commands:
  chat <user_id> <nickname>   join the chat; type a line to broadcast it,
                              "/w <user_id> <text>" to whisper, "/quit" to leave
  history                     print the locally cached history`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: error loading .env file:", err)
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.ClientFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stderr)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.HistoryBackend).Msg("failed to open history store")
	}
	defer closeStore()
	cache := history.NewCache(store, logger)

	switch os.Args[1] {
	case "chat":
		if len(os.Args) != 4 {
			fmt.Println("Usage: chatcli chat <user_id> <nickname>")
			os.Exit(1)
		}
		if err := runChat(cfg, cache, logger, models.UserID(os.Args[2]), os.Args[3]); err != nil {
			logger.Error().Err(err).Msg("chat failed")
			os.Exit(1)
		}
	case "history":
		if err := printHistory(cache); err != nil {
			logger.Fatal().Err(err).Msg("failed to read history")
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

// openStore picks the history backend named by HISTORY_BACKEND.
func openStore(cfg config.ClientConfig) (storage.Store, func(), error) {
	switch cfg.HistoryBackend {
	case "", "file":
		s, err := storage.NewFileStore(cfg.HistoryDir)
		return s, func() {}, err
	case "redis":
		if !cfg.Redis.Enabled() {
			return nil, nil, errors.New("REDIS_ADDR is not set")
		}
		rdb, err := storage.OpenRedis(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(rdb, "carchat:"), func() { rdb.Close() }, nil
	case "postgres":
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, nil, err
		}
		s, err := storage.OpenPostgres(dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if db, err := s.DB.DB(); err == nil {
				db.Close()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

func runChat(cfg config.ClientConfig, cache *history.Cache, logger zerolog.Logger, userID models.UserID, nickname string) error {
	var header http.Header
	if cfg.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + cfg.Token}}
	}

	m := chatclient.NewManager(chatclient.Options{
		URL:             cfg.URL(),
		Header:          header,
		ReconnectDelay:  cfg.ReconnectDelay,
		ReconnectJitter: cfg.ReconnectJitter,
		History:         cache,
		Logger:          logger,
		OnStateChange: func(_, next chatclient.State) {
			fmt.Printf("* %s\n", next)
		},
	})
	m.AddListener(cache.Record)
	m.AddListener(printEnvelope)

	if err := m.JoinChat(userID, nickname); err != nil {
		return err
	}
	m.Connect()
	defer m.LeaveChat()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-quit:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(m, cache, line); done {
				return nil
			}
		}
	}
}

// handleLine sends one line of input. It reports true when the user asked to quit.
func handleLine(m *chatclient.Manager, cache *history.Cache, line string) bool {
	in, err := parseLine(line)
	if err != nil {
		fmt.Println("*", err)
		return false
	}

	var (
		env models.Envelope
		ok  bool
	)
	switch in.kind {
	case inputEmpty:
		return false
	case inputQuit:
		return true
	case inputWhisper:
		env, ok = m.SendPrivateMessage(in.receiver, in.content)
	default:
		env, ok = m.SendPublicMessage(in.content)
	}
	if !ok {
		fmt.Println("* not sent (not connected)")
		return false
	}
	cache.Record(env)
	return false
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func printEnvelope(env models.Envelope) {
	switch env.Type {
	case models.TypePublicMessage:
		fmt.Printf("[%s] %s: %s\n", env.Timestamp, env.SenderName, env.Content)
	case models.TypePrivateMessage:
		fmt.Printf("[%s] %s (private): %s\n", env.Timestamp, env.SenderName, env.Content)
	}
}

func printHistory(cache *history.Cache) error {
	entries, err := cache.Load(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history.")
		return nil
	}
	for _, env := range entries {
		printEnvelope(env)
	}
	return nil
}
