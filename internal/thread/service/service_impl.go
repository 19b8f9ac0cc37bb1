package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	assistantdomain "github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/cache"
	"github.com/pulseform/pulseform/internal/clock"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bindingCacheTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Client assistantdomain.Client
}

type Registry struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	client assistantdomain.Client

	bindings cache.Cache[string, string]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(p Params) threaddomain.Registry {
	return &Registry{
		db:       p.DB,
		log:      p.Log.Named("thread.registry"),
		genID:    p.GenID,
		clock:    p.Clock,
		client:   p.Client,
		bindings: cache.NewTTLCache[string, string](),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *Registry) GetOrCreate(ctx context.Context, scope threaddomain.Scope, key string) (string, bool, error) {
	if scope == "" {
		return "", false, threaddomain.ErrInvalidScope
	}
	if key == "" {
		return "", false, threaddomain.ErrInvalidKey
	}

	cacheKey := bindingKey(scope, key)
	if id, ok := r.bindings.Get(cacheKey); ok {
		return id, false, nil
	}

	if id, found, err := r.lookup(ctx, scope, key); err != nil {
		return "", false, err
	} else if found {
		r.bindings.Set(cacheKey, id, bindingCacheTTL)
		return id, false, nil
	}

	// First use: create the external thread before persisting, so a failed
	// creation leaves no binding behind.
	externalID, err := r.client.CreateThread(ctx)
	if err != nil {
		return "", false, err
	}

	row := threaddomain.Binding{
		ID:               r.genID.Generate(),
		Scope:            scope,
		Key:              key,
		ExternalThreadID: externalID,
		CreatedAt:        r.clock.Now(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return "", false, result.Error
	}
	if result.RowsAffected == 0 {
		// Lost the race: another caller bound the pair first. Re-read and
		// discard our freshly created thread.
		id, found, err := r.lookup(ctx, scope, key)
		if err != nil {
			return "", false, err
		}
		if found {
			r.bindings.Set(cacheKey, id, bindingCacheTTL)
			return id, false, nil
		}
		return "", false, gorm.ErrRecordNotFound
	}

	r.log.Info("thread bound",
		zap.String("scope", string(scope)),
		zap.String("key", key),
	)
	r.bindings.Set(cacheKey, externalID, bindingCacheTTL)
	return externalID, true, nil
}

func (r *Registry) ResetGeneric(ctx context.Context) (string, error) {
	unlock := r.Lock(threaddomain.ScopeGeneric, threaddomain.GenericKey)
	defer unlock()

	if err := r.deleteBinding(ctx, threaddomain.ScopeGeneric, threaddomain.GenericKey); err != nil {
		return "", err
	}
	id, _, err := r.GetOrCreate(ctx, threaddomain.ScopeGeneric, threaddomain.GenericKey)
	return id, err
}

func (r *Registry) SeedContext(ctx context.Context, scope threaddomain.Scope, key, contextText string) error {
	threadID, _, err := r.GetOrCreate(ctx, scope, key)
	if err != nil {
		return err
	}
	return r.client.PostMessage(ctx, threadID, assistantdomain.RoleUser, contextText)
}

func (r *Registry) Delete(ctx context.Context, scope threaddomain.Scope, key string) error {
	return r.deleteBinding(ctx, scope, key)
}

func (r *Registry) Lock(scope threaddomain.Scope, key string) func() {
	cacheKey := bindingKey(scope, key)
	r.mu.Lock()
	lock, ok := r.locks[cacheKey]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[cacheKey] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (r *Registry) lookup(ctx context.Context, scope threaddomain.Scope, key string) (string, bool, error) {
	var row threaddomain.Binding
	err := r.db.WithContext(ctx).
		First(&row, "scope = ? AND binding_key = ?", scope, key).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.ExternalThreadID, true, nil
}

func (r *Registry) deleteBinding(ctx context.Context, scope threaddomain.Scope, key string) error {
	r.bindings.Delete(bindingKey(scope, key))
	return r.db.WithContext(ctx).
		Where("scope = ? AND binding_key = ?", scope, key).
		Delete(&threaddomain.Binding{}).Error
}

func bindingKey(scope threaddomain.Scope, key string) string {
	return string(scope) + "|" + key
}
