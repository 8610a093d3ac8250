// Package lookup keeps a read-through snapshot of the reference data every voucher and segment
// screen needs: relations, cash boxes, users and settings.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/relations"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
)

const snapshotKey = "snapshot"

// Snapshot is one consistent load of the reference data.
type Snapshot struct {
	Clients   []relations.Client   `json:"clients"`
	Suppliers []relations.Client   `json:"suppliers"`
	Boxes     []accounts.Account   `json:"boxes"`
	Users     []auth.Identity      `json:"users"`
	Settings  settings.AppSettings `json:"settings"`
	LoadedAt  time.Time            `json:"loadedAt"`
	byID      map[string]relations.Client
}

// Relation finds a client or supplier by id.
func (s *Snapshot) Relation(id string) (relations.Client, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// RelationSource lists relations.
type RelationSource interface {
	List(ctx context.Context, filters relations.ListFilters) (relations.ListResult, error)
}

// BoxSource lists cash box accounts.
type BoxSource interface {
	ListBoxes(ctx context.Context) ([]accounts.Account, error)
}

// UserSource lists active users.
type UserSource interface {
	ListUsers(ctx context.Context) ([]auth.Identity, error)
}

// SettingsSource loads the settings document.
type SettingsSource interface {
	Get(ctx context.Context) (settings.AppSettings, error)
}

// Sources groups the loaders of a snapshot.
type Sources struct {
	Relations RelationSource
	Boxes     BoxSource
	Users     UserSource
	Settings  SettingsSource
}

// Cache serves snapshots from memory and reloads them when they expire or are invalidated.
type Cache struct {
	sources Sources
	store   *gocache.Cache
	group   singleflight.Group
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a cache whose snapshots live for ttl. Forced refreshes are limited to one every
// refreshEvery; extra requests are served the current snapshot.
func New(sources Sources, ttl, refreshEvery time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		sources: sources,
		store:   gocache.New(ttl, 2*ttl),
		limiter: rate.NewLimiter(rate.Every(refreshEvery), 1),
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached snapshot, loading it on a miss.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	if snap, ok := c.cached(); ok {
		return snap, nil
	}
	return c.load(ctx)
}

// Refresh reloads the snapshot. When refreshes are throttled the current snapshot is returned.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	if !c.limiter.Allow() {
		if snap, ok := c.cached(); ok {
			return snap, nil
		}
	}
	c.store.Delete(snapshotKey)
	return c.load(ctx)
}

// Invalidate drops the snapshot so the next Get reloads it.
func (c *Cache) Invalidate() {
	c.store.Delete(snapshotKey)
}

// Relation resolves a relation. A miss triggers a reload that shares the Refresh throttle, so
// repeated unknown ids are answered from the current snapshot.
func (c *Cache) Relation(ctx context.Context, id string) (relations.Client, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return relations.Client{}, err
	}
	if client, ok := snap.Relation(id); ok {
		return client, nil
	}
	snap, err = c.Refresh(ctx)
	if err != nil {
		return relations.Client{}, err
	}
	if client, ok := snap.Relation(id); ok {
		return client, nil
	}
	return relations.Client{}, fmt.Errorf("lookup: relation %s: %w", id, shared.ErrNotFound)
}

// Box resolves an active cash box account by code.
func (c *Cache) Box(ctx context.Context, code string) (accounts.Account, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return accounts.Account{}, err
	}
	for _, box := range snap.Boxes {
		if box.Code == code {
			return box, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("lookup: box %s: %w", code, shared.ErrNotFound)
}

// Settings returns the settings of the current snapshot.
func (c *Cache) Settings(ctx context.Context) (settings.AppSettings, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return settings.AppSettings{}, err
	}
	return snap.Settings, nil
}

func (c *Cache) cached() (*Snapshot, bool) {
	value, ok := c.store.Get(snapshotKey)
	if !ok {
		return nil, false
	}
	snap, ok := value.(*Snapshot)
	return snap, ok
}

func (c *Cache) load(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan(snapshotKey, func() (any, error) {
		snap, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store.SetDefault(snapshotKey, snap)
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *Cache) fetch(ctx context.Context) (*Snapshot, error) {
	started := c.now()
	snap := &Snapshot{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := c.sources.Relations.List(ctx, relations.ListFilters{All: true})
		if err != nil {
			return fmt.Errorf("lookup: relations: %w", err)
		}
		snap.byID = make(map[string]relations.Client, len(result.Items))
		snap.Clients = make([]relations.Client, 0, len(result.Items))
		snap.Suppliers = make([]relations.Client, 0, len(result.Items))
		for _, client := range result.Items {
			snap.byID[client.ID] = client
			if client.IsClient() {
				snap.Clients = append(snap.Clients, client)
			}
			if client.IsSupplier() {
				snap.Suppliers = append(snap.Suppliers, client)
			}
		}
		return nil
	})
	g.Go(func() error {
		boxes, err := c.sources.Boxes.ListBoxes(ctx)
		if err != nil {
			return fmt.Errorf("lookup: boxes: %w", err)
		}
		snap.Boxes = boxes
		return nil
	})
	g.Go(func() error {
		users, err := c.sources.Users.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("lookup: users: %w", err)
		}
		snap.Users = users
		return nil
	})
	g.Go(func() error {
		doc, err := c.sources.Settings.Get(ctx)
		if err != nil {
			return fmt.Errorf("lookup: settings: %w", err)
		}
		snap.Settings = doc
		return nil
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("lookup refresh failed", slog.Any("error", err))
		return nil, err
	}
	snap.LoadedAt = c.now().UTC()
	c.logger.Debug("lookup refreshed",
		slog.Int("relations", len(snap.byID)),
		slog.Int("boxes", len(snap.Boxes)),
		slog.Duration("took", c.now().Sub(started)))
	return snap, nil
}
