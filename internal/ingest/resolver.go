package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/clock"
	"github.com/JakeFAU/hnmirror/internal/crawler"
	"github.com/JakeFAU/hnmirror/internal/gate"
	"github.com/JakeFAU/hnmirror/internal/hn"
	"github.com/JakeFAU/hnmirror/internal/store"
)

// ErrUserCountMismatch means storage returned a different number of user rows than were submitted.
var ErrUserCountMismatch = errors.New("user upsert count mismatch")

// UserFetcher fetches a user profile by handle.
type UserFetcher interface {
	GetUser(ctx context.Context, handle string) (hn.User, error)
}

// Resolver maps every author in a forest to an internal user id.
type Resolver struct {
	fetcher UserFetcher
	users   store.UserStore
	gate    *gate.Gate
	clock   clock.Clock
	logger  *zap.Logger
}

// NewResolver builds a Resolver. Profile fetches are admitted through g.
func NewResolver(fetcher UserFetcher, users store.UserStore, g *gate.Gate, clk clock.Clock, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Resolver{fetcher: fetcher, users: users, gate: g, clock: clk, logger: logger.Named("resolver")}
}

// Handles returns the distinct author handles of every node in the forest, sorted.
// Deleted items count when they still record an author.
func Handles(trees []*crawler.Tree) []string {
	seen := make(map[string]struct{})
	crawler.Walk(trees, func(t *crawler.Tree) {
		if by := t.Item.Meta().By; by != "" {
			seen[by] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Resolve fetches every author profile, upserts them in one call and returns handle to id.
// Profiles that cannot be fetched are logged and left out.
func (r *Resolver) Resolve(ctx context.Context, trees []*crawler.Tree) (map[string]int64, error) {
	handles := Handles(trees)
	profiles := make([]*hn.User, len(handles))

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := gate.Run(ctx, r.gate, func(ctx context.Context) (hn.User, error) {
				return r.fetcher.GetUser(ctx, h)
			})
			if err != nil {
				r.logger.Warn("dropping user", zap.String("handle", h), zap.Error(err))
				return
			}
			profiles[i] = &u
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}

	now := r.clock.Now()
	rows := make([]store.UserRow, 0, len(handles))
	for i, p := range profiles {
		if p == nil {
			continue
		}
		rows = append(rows, store.UserRow{
			Username:  handles[i],
			CreatedAt: p.Created,
			Karma:     p.Karma,
			About:     p.About,
			UpdatedAt: now,
		})
	}

	ids := make(map[string]int64, len(rows))
	if len(rows) == 0 {
		return ids, nil
	}
	pairs, err := r.users.UpsertUsers(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	if len(pairs) != len(rows) {
		return nil, fmt.Errorf("%w: submitted %d, stored %d", ErrUserCountMismatch, len(rows), len(pairs))
	}
	for _, p := range pairs {
		ids[p.Username] = p.ID
	}
	r.logger.Debug("resolved users", zap.Int("requested", len(handles)), zap.Int("stored", len(pairs)))
	return ids, nil
}
