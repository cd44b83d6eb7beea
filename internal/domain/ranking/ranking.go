// Package ranking builds per-event team rankings and caches them as
// snapshots. Writers invalidate an event after every change, so a read that
// follows a join or a check-in never sees a snapshot built before it.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

const defaultTTL = 2 * time.Second

// Source reads the raw standings of an event.
type Source interface {
	Standings(ctx context.Context, eventID int64) ([]model.Standing, error)
}

type snapshot struct {
	generation uint64
	builtAt    time.Time
	entries    []model.RankingEntry
}

// Aggregator computes and caches rankings.
type Aggregator struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger

	mu          sync.Mutex
	snapshots   map[int64]snapshot
	generations map[int64]uint64
	group       singleflight.Group
}

// New creates an aggregator over source.
func New(source Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:      source,
		ttl:         defaultTTL,
		now:         time.Now,
		logger:      logger.Get().Named("ranking"),
		snapshots:   make(map[int64]snapshot),
		generations: make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute builds a fresh ranking without touching the cache.
func (a *Aggregator) Compute(ctx context.Context, eventID int64) ([]model.RankingEntry, error) {
	const op = "ranking.Compute"

	start := time.Now()
	standings, err := a.source.Standings(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].TeamID < standings[j].TeamID
	})

	entries := make([]model.RankingEntry, len(standings))
	for i, s := range standings {
		entries[i] = model.RankingEntry{
			Rank:     i + 1,
			TeamID:   s.TeamID,
			TeamName: s.TeamName,
			Score:    s.Score,
			TeamSize: s.TeamSize,
		}
	}
	metrics.RecordRankingBuild(float64(time.Since(start).Nanoseconds()) / 1e6)
	return entries, nil
}

// Ranking returns the event ranking, served from a snapshot when one is
// fresh. Concurrent misses for the same generation share a single load.
func (a *Aggregator) Ranking(ctx context.Context, eventID int64) ([]model.RankingEntry, error) {
	const op = "ranking.Ranking"

	a.mu.Lock()
	gen := a.generations[eventID]
	snap, ok := a.snapshots[eventID]
	a.mu.Unlock()

	if ok && snap.generation == gen && a.now().Sub(snap.builtAt) < a.ttl {
		metrics.RecordRankingRequest("snapshot")
		return clone(snap.entries), nil
	}
	metrics.RecordRankingRequest("load")

	key := strconv.FormatInt(eventID, 10) + ":" + strconv.FormatUint(gen, 10)
	ch := a.group.DoChan(key, func() (any, error) {
		entries, err := a.Compute(context.WithoutCancel(ctx), eventID)
		if err != nil {
			a.logger.Debug(ctx, "ranking load failed", logger.Int64("event_id", eventID), logger.Error(err))
			return nil, err
		}
		a.store(eventID, gen, entries)
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return clone(res.Val.([]model.RankingEntry)), nil
	}
}

// store keeps entries unless the event was invalidated while they were built.
func (a *Aggregator) store(eventID int64, gen uint64, entries []model.RankingEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generations[eventID] != gen {
		return
	}
	a.snapshots[eventID] = snapshot{generation: gen, builtAt: a.now(), entries: entries}
}

// Invalidate marks every snapshot of the event as stale.
func (a *Aggregator) Invalidate(eventID int64) {
	a.mu.Lock()
	a.generations[eventID]++
	delete(a.snapshots, eventID)
	a.mu.Unlock()

	metrics.RecordRankingInvalidation()
}

// Len reports how many events hold a snapshot.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

func clone(entries []model.RankingEntry) []model.RankingEntry {
	out := make([]model.RankingEntry, len(entries))
	copy(out, entries)
	return out
}
