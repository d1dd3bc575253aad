package syncq

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/logging"
)

// Watcher polls remote reachability and triggers a queue drain whenever
// connectivity comes back.
type Watcher struct {
	store     docstore.Store
	processor *Processor
	log       logging.Logger
	userID    string
	interval  time.Duration

	online bool
}

func NewWatcher(store docstore.Store, processor *Processor, log logging.Logger, userID string, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = 3 * time.Second
	}
	return &Watcher{
		store:     store,
		processor: processor,
		log:       log.With("component", "syncq.watcher"),
		userID:    userID,
		interval:  interval,
	}
}

// Run blocks until ctx is done, probing the remote store on every tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := w.store.Ping(probeCtx)
			cancel()

			if err != nil {
				if w.online {
					w.log.Info(ctx, "remote store unreachable, switching offline")
				}
				w.online = false
				continue
			}

			if !w.online {
				w.online = true
				w.log.Info(ctx, "connectivity restored, draining queue")
				if err := w.processor.ProcessAll(ctx, w.userID); err != nil {
					w.log.Error(ctx, "queue drain failed", "err", err)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
