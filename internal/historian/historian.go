// internal/historian/historian.go
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued actions. Pop returns (nil, nil) when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.GameAction, error)
}

// Store persists action batches.
type Store interface {
	InsertGameActions(ctx context.Context, actions []models.GameAction) error
	MarkSessionAbandoned(ctx context.Context, sessionID string) error
}

type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a session may stay silent before it is marked abandoned.
	Inactivity time.Duration
	PopTimeout time.Duration
	Clock      clockwork.Clock
	Logger     *logrus.Logger
}

// Service drains the action queue into the store in batches and marks
// sessions abandoned once they stop producing actions.
type Service struct {
	source Source
	store  Store
	opts   Options
	log    *logrus.Entry

	batchMu sync.Mutex
	batch   []models.GameAction

	activityMu   sync.Mutex
	lastActivity map[string]time.Time
}

func NewService(source Source, store Store, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 2 * time.Second
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		source:       source,
		store:        store,
		opts:         opts,
		log:          opts.Logger.WithField("component", "historian"),
		batch:        make([]models.GameAction, 0, opts.BatchSize),
		lastActivity: make(map[string]time.Time),
	}
}

// Run reads the queue until ctx is done, then flushes what is left.
func (hs *Service) Run(ctx context.Context) error {
	hs.log.Info("historian started")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hs.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		hs.inactivityLoop(ctx)
	}()

	hs.readLoop(ctx)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Flush(flushCtx)
	hs.log.Info("historian stopped")
	return nil
}

func (hs *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		action, err := hs.source.Pop(ctx, hs.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hs.log.Errorf("pop: %v", err)
			hs.opts.Clock.Sleep(time.Second)
			continue
		}
		if action == nil {
			continue
		}
		hs.Ingest(ctx, *action)
	}
}

// Ingest adds one action to the batch and flushes when the batch is full.
func (hs *Service) Ingest(ctx context.Context, action models.GameAction) {
	hs.activityMu.Lock()
	switch action.ActionType {
	case "game_ended", "session_closed":
		delete(hs.lastActivity, action.SessionID)
	default:
		hs.lastActivity[action.SessionID] = hs.opts.Clock.Now()
	}
	hs.activityMu.Unlock()

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, action)
	full := len(hs.batch) >= hs.opts.BatchSize
	hs.batchMu.Unlock()

	if full {
		hs.Flush(ctx)
	}
}

// Flush writes the pending batch. A failed batch is put back in front of newer actions.
func (hs *Service) Flush(ctx context.Context) int {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return 0
	}
	pending := make([]models.GameAction, len(hs.batch))
	copy(pending, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := hs.store.InsertGameActions(ctx, pending); err != nil {
		hs.log.Errorf("flush %d actions: %v", len(pending), err)
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return 0
	}
	hs.log.Debugf("flushed %d actions", len(pending))
	return len(pending)
}

func (hs *Service) flushLoop(ctx context.Context) {
	ticker := hs.opts.Clock.NewTicker(hs.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			hs.Flush(ctx)
		}
	}
}

func (hs *Service) inactivityLoop(ctx context.Context) {
	ticker := hs.opts.Clock.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			hs.MarkInactive(ctx)
		}
	}
}

// MarkInactive flags every silent session as abandoned and returns how many were flagged.
func (hs *Service) MarkInactive(ctx context.Context) int {
	now := hs.opts.Clock.Now()
	var stale []string
	hs.activityMu.Lock()
	for id, last := range hs.lastActivity {
		if now.Sub(last) > hs.opts.Inactivity {
			stale = append(stale, id)
			delete(hs.lastActivity, id)
		}
	}
	hs.activityMu.Unlock()

	marked := 0
	for _, id := range stale {
		if err := hs.store.MarkSessionAbandoned(ctx, id); err != nil {
			hs.log.Errorf("failed to mark session %s abandoned: %v", id, err)
			continue
		}
		hs.log.WithField("session", id).Info("marked session abandoned due to inactivity")
		marked++
	}
	return marked
}
