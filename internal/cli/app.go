// Package cli implements the interactive vault shell: a flag-configured
// REPL over the vault service.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/filevault/internal/audit"
	"github.com/dmitrijs2005/filevault/internal/config"
	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/feed"
	"github.com/dmitrijs2005/filevault/internal/keys"
	"github.com/dmitrijs2005/filevault/internal/localdb"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/ratelimit"
	"github.com/dmitrijs2005/filevault/internal/share"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/dmitrijs2005/filevault/internal/syncq"
	"github.com/dmitrijs2005/filevault/internal/vault"
	"golang.org/x/time/rate"
)

// App wires the full client stack and drives the REPL.
type App struct {
	config  *config.Config
	log     logging.Logger
	vault   *vault.Service
	keys    *keys.Manager
	store   docstore.Store
	feed    *feed.Feed
	watcher *syncq.Watcher
	audit   *audit.Recorder

	// cwd is the folder the REPL is "in"; "" is the root.
	cwd    string
	reader *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewDefault()

	db, err := localdb.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	keyStore := keys.NewStoreWithFallback(
		keys.NewSQLiteStore(db),
		keys.NewFileStore(cfg.DatabasePath+".keys"),
		log)
	km := keys.NewManager(cfg.UserID, keyStore, log)

	var store docstore.Store
	if cfg.RemoteDSN != "" {
		store, err = docstore.NewPostgres(ctx, cfg.RemoteDSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect document store: %w", err)
		}
	} else {
		log.Warn(ctx, "no remote DSN configured, using in-memory document store")
		store = docstore.NewMemory()
	}

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue := syncq.NewProcessor(syncq.NewSQLiteRepository(db), store, log, syncq.Options{})
	watcher := syncq.NewWatcher(store, queue, log, cfg.UserID, cfg.OnlineCheckInterval)

	shares := share.NewService(
		share.NewSQLiteRepository(db),
		share.NewCapabilityIssuer([]byte(cfg.CapabilitySecret), cfg.CapabilityTTL),
		ratelimit.NewPerUser(rate.Limit(cfg.ShareRate), cfg.ShareBurst),
		log)

	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db), log)

	svc := vault.NewService(cfg.UserID, vault.Deps{
		Keys:    km,
		Items:   vault.NewSQLiteItemRepository(db),
		Store:   store,
		Router:  router,
		Queue:   queue,
		Shares:  shares,
		Audit:   recorder,
		Uploads: ratelimit.NewPerUser(rate.Limit(cfg.UploadRate), cfg.UploadBurst),
		Log:     log,
	})

	return &App{
		config:  cfg,
		log:     log,
		vault:   svc,
		keys:    km,
		store:   store,
		feed:    feed.New(store, log),
		watcher: watcher,
		audit:   recorder,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// buildRouter registers one backend per provider: S3 when configured,
// otherwise local directories next to the database file.
func buildRouter(ctx context.Context, cfg *config.Config) (*storage.Router, error) {
	buckets := map[storage.Provider]string{
		storage.ProviderStandard: cfg.StandardBucket,
		storage.ProviderBulk:     cfg.BulkBucket,
		storage.ProviderArchive:  cfg.ArchiveBucket,
	}

	backends := make(map[storage.Provider]storage.Backend, len(buckets))
	for provider, bucket := range buckets {
		if cfg.S3Endpoint != "" {
			b, err := storage.NewS3Backend(ctx, storage.S3Config{
				Provider:       provider,
				Endpoint:       cfg.S3Endpoint,
				Region:         cfg.S3Region,
				Bucket:         bucket,
				AccessKey:      cfg.S3AccessKey,
				SecretKey:      cfg.S3SecretKey,
				RequestTimeout: cfg.RequestTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to build %s backend: %w", provider, err)
			}
			backends[provider] = b
			continue
		}
		dir := filepath.Join(filepath.Dir(cfg.DatabasePath), "objects", provider.String())
		b, err := storage.NewFSBackend(provider, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s backend: %w", provider, err)
		}
		backends[provider] = b
	}
	return storage.NewRouter(nil, backends), nil
}

func (a *App) isUnlocked() bool {
	return a.keys.State() == keys.StateUnlocked
}

// Run starts the connectivity watcher and the REPL; it returns when the user
// exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.audit.Close()

	go a.watcher.Run(ctx)
	if err := a.vault.WatchRemote(ctx); err != nil {
		a.log.Warn(ctx, "remote change watch unavailable", "err", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) status() string {
	state := "locked"
	if a.isUnlocked() {
		state = "unlocked"
	}
	if a.cwd != "" {
		return fmt.Sprintf("%s %s", state, a.cwd)
	}
	return state
}

func (a *App) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
