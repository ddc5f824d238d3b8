package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"trade_stream/internal/infra"
	"trade_stream/internal/storage"
	"trade_stream/internal/stream"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
	Session *stream.Session
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, sets up logging, opens the journal, and
// builds the session. The session is not started.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// Journals for live and paper money never share a file.
	mode := strings.ToLower(cfg.Trading.Mode)
	dbPath := cfg.Journal.Path
	if dbPath == "" {
		dbPath = filepath.Join("data", mode, "journal.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	journal, err := storage.NewJournal(dbPath)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("journal initialized (WAL-mode)", "path", dbPath, "mode", mode)

	b.Session = stream.NewSession(stream.Config{
		Endpoint:       cfg.API.Endpoint,
		Token:          cfg.API.Token,
		ReconnectDelay: cfg.ReconnectDelay(),
		UseBackoff:     cfg.Session.Backoff,
		RequestTimeout: cfg.RequestTimeout(),
		RequestsPerSec: cfg.API.RequestsPerSec,
	})
	b.Journal.Attach(b.Session.Bus(), cfg.Journal.RecordTicks)

	return nil
}

// Shutdown releases resources in reverse order of acquisition.
func (b *Bootstrap) Shutdown() {
	if b.Session != nil {
		b.Session.Stop()
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("journal close failed", "err", err)
		}
	}
}
