package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"scramble/internal/board"
	"scramble/internal/server"
	"scramble/internal/session"
	"scramble/internal/storage"
)

// defaultValues is the card pool for boards generated at startup.
var defaultValues = []string{"🦄", "🌈", "⭐", "☀", "🌙", "🍀", "🔥", "🎲"}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}

	dbPath := "scramble.db"
	if p := os.Getenv("DB_PATH"); p != "" {
		dbPath = p
	}

	store, err := storage.New(dbPath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer store.Close()

	mgr := session.NewManager(store, logger)

	// Optionally host a board straight from disk at startup.
	if path := os.Getenv("BOARD_FILE"); path != "" {
		b, err := board.ParseFile(path)
		if err != nil {
			logger.Fatal("parse board file", zap.String("path", path), zap.Error(err))
		}
		sess, err := mgr.Host(b)
		if err != nil {
			logger.Fatal("host board", zap.String("path", path), zap.Error(err))
		}
		logger.Info("hosted board from file",
			zap.String("path", path), zap.String("code", sess.Code))
	}

	// Optionally host a generated board of a given size at startup.
	if size := os.Getenv("BOARD_SIZE"); size != "" {
		rows, cols, err := parseSize(size)
		if err != nil {
			logger.Fatal("parse BOARD_SIZE", zap.String("size", size), zap.Error(err))
		}
		sess, err := mgr.CreateGenerated(rows, cols, defaultValues)
		if err != nil {
			logger.Fatal("generate board", zap.String("size", size), zap.Error(err))
		}
		logger.Info("hosted generated board",
			zap.String("size", size), zap.String("code", sess.Code))
	}

	// Clean up cleared and stale games every minute, expire after 24 hours.
	go mgr.CleanupLoop(time.Minute, 24*time.Hour)

	srv := server.New(mgr, logger)

	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// parseSize splits "ROWSxCOLS" into integers.
func parseSize(s string) (rows, cols int, err error) {
	r, c, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("size must be ROWSxCOLS, got %q", s)
	}
	rows, err = strconv.Atoi(r)
	if err != nil {
		return 0, 0, fmt.Errorf("size must be ROWSxCOLS, got %q", s)
	}
	cols, err = strconv.Atoi(c)
	if err != nil {
		return 0, 0, fmt.Errorf("size must be ROWSxCOLS, got %q", s)
	}
	return rows, cols, nil
}
