package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// GameRow is one hosted game in the database. Live board state (faces,
// controls, card values) is never persisted; the store records which games
// exist and how the players scored.
type GameRow struct {
	Code      string
	Rows      int
	Cols      int
	CreatedAt time.Time
}

// ScoreRow is one player's matched-pair count in one game.
type ScoreRow struct {
	GameCode string
	Player   string
	Pairs    int
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			code       TEXT PRIMARY KEY,
			rows       INTEGER NOT NULL,
			cols       INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS scores (
			game_code  TEXT NOT NULL REFERENCES games(code),
			player     TEXT NOT NULL,
			pairs      INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game_code, player)
		);
	`)
	return err
}

// CreateGame inserts a new game.
func (s *Store) CreateGame(code string, rows, cols int) error {
	_, err := s.db.Exec(
		"INSERT INTO games (code, rows, cols) VALUES (?, ?, ?)",
		code, rows, cols,
	)
	return err
}

// GetGame retrieves a game by code.
func (s *Store) GetGame(code string) (*GameRow, error) {
	row := s.db.QueryRow("SELECT code, rows, cols, created_at FROM games WHERE code = ?", code)
	var gr GameRow
	if err := row.Scan(&gr.Code, &gr.Rows, &gr.Cols, &gr.CreatedAt); err != nil {
		return nil, err
	}
	return &gr, nil
}

// ListGames returns all games, newest first.
func (s *Store) ListGames() ([]GameRow, error) {
	rows, err := s.db.Query("SELECT code, rows, cols, created_at FROM games ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []GameRow
	for rows.Next() {
		var gr GameRow
		if err := rows.Scan(&gr.Code, &gr.Rows, &gr.Cols, &gr.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, gr)
	}
	return result, rows.Err()
}

// UpsertScore records a player's matched-pair count for a game.
func (s *Store) UpsertScore(gameCode, player string, pairs int) error {
	_, err := s.db.Exec(`
		INSERT INTO scores (game_code, player, pairs, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(game_code, player) DO UPDATE SET pairs = excluded.pairs, updated_at = excluded.updated_at
	`, gameCode, player, pairs)
	return err
}

// GameScores returns the scores for one game, highest first.
func (s *Store) GameScores(gameCode string) ([]ScoreRow, error) {
	rows, err := s.db.Query(
		"SELECT game_code, player, pairs FROM scores WHERE game_code = ? ORDER BY pairs DESC, player",
		gameCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ScoreRow
	for rows.Next() {
		var sr ScoreRow
		if err := rows.Scan(&sr.GameCode, &sr.Player, &sr.Pairs); err != nil {
			return nil, err
		}
		result = append(result, sr)
	}
	return result, rows.Err()
}

// DeleteGame removes a game and its scores.
func (s *Store) DeleteGame(code string) error {
	_, err := s.db.Exec("DELETE FROM scores WHERE game_code = ?", code)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("DELETE FROM games WHERE code = ?", code)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
