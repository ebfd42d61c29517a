package journal

import (
	"context"
	"time"

	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

// Listener records every successful generation of a controller
func Listener(store Store, logger *logging.Logger) player.Listener {
	if logger == nil {
		logger = logging.New("journal")
	}

	return func(e player.Event) {
		if e.Type != player.EventGenerated || e.Generation == nil {
			return
		}

		entry := FromGeneration(e.Flow, e.Generation, e.Time)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.Record(ctx, entry); err != nil {
			logger.Warn("Failed to record meditation", "flow", e.Flow, "error", err)
			return
		}
		logger.Debug("Recorded meditation", "id", entry.ID, "flow", e.Flow)
	}
}

// FromGeneration converts a generation event payload to an entry
func FromGeneration(flow meditation.Flow, g *player.Generation, at time.Time) *Entry {
	return &Entry{
		Flow:       flow,
		Intentions: g.Intentions,
		Script:     g.Script,
		Voice:      g.Voice,
		Duration:   g.Duration,
		Elapsed:    g.Elapsed,
		CreatedAt:  at.UTC(),
	}
}
