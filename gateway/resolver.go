package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinema_pos/constants"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// storedConfig mirrors model.GatewayConfig without its json:"-" tags so
// credentials survive the cache round trip.
type storedConfig struct {
	model.DTO
	TheaterId       uint
	Channel         model.Channel
	Provider        string
	Enabled         bool
	AcceptedMethods string
	KeyId           string
	KeySecret       string
	MerchantId      string
	MerchantKey     string
	Website         string
	SaltKey         string
	SaltIndex       string
}

type cacheEntry struct {
	Found  bool         `json:"found"`
	Config storedConfig `json:"config"`
}

// ConfigResolver reads gateway configs through a short-lived Redis cache.
// A nil Redis client disables caching.
type ConfigResolver struct {
	db      *gorm.DB
	rdb     *redis.Client
	ttl     time.Duration
	factory *Factory
	group   singleflight.Group
}

func NewConfigResolver(db *gorm.DB, rdb *redis.Client, ttl time.Duration, factory *Factory) *ConfigResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ConfigResolver{db: db, rdb: rdb, ttl: ttl, factory: factory}
}

func cacheKey(theaterID uint, channel model.Channel) string {
	return fmt.Sprintf(constants.GATEWAY_CONFIG_KEY, theaterID, channel)
}

// Config returns the stored config or nil when the channel has none.
func (r *ConfigResolver) Config(ctx context.Context, theaterID uint, channel model.Channel) (*model.GatewayConfig, error) {
	key := cacheKey(theaterID, channel)

	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var entry cacheEntry
			if err := json.Unmarshal(raw, &entry); err == nil {
				if !entry.Found {
					return nil, nil
				}
				cfg := model.GatewayConfig(entry.Config)
				return &cfg, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Warnf("gateway config cache read %s: %v", key, err)
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		var cfg model.GatewayConfig
		err := r.db.WithContext(ctx).
			Where("theater_id = ? AND channel = ?", theaterID, channel).
			First(&cfg).Error
		entry := cacheEntry{}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			entry = cacheEntry{Found: true, Config: storedConfig(cfg)}
		}
		r.store(ctx, key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	entry := v.(cacheEntry)
	if !entry.Found {
		return nil, nil
	}
	cfg := model.GatewayConfig(entry.Config)
	return &cfg, nil
}

func (r *ConfigResolver) store(ctx context.Context, key string, entry cacheEntry) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		log.Warnf("gateway config cache write %s: %v", key, err)
	}
}

func (r *ConfigResolver) Resolve(ctx context.Context, theaterID uint, channel model.Channel) (Binding, error) {
	cfg, err := r.Config(ctx, theaterID, channel)
	if err != nil {
		return Binding{}, err
	}
	return r.factory.Bind(theaterID, channel, cfg)
}

func (r *ConfigResolver) Invalidate(ctx context.Context, theaterID uint, channel model.Channel) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, cacheKey(theaterID, channel)).Err()
}

// Save upserts the config of a theater channel. Empty secrets keep the
// stored value so admins can edit methods without re-entering keys.
func (r *ConfigResolver) Save(ctx context.Context, theaterID uint, channel model.Channel, input model.GatewayConfigInput) (*model.GatewayConfig, error) {
	var cfg model.GatewayConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("theater_id = ? AND channel = ?", theaterID, channel).First(&cfg).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		methods := make([]string, 0, len(input.AcceptedMethods))
		for _, m := range input.AcceptedMethods {
			methods = append(methods, string(model.NormalizeMethod(string(m))))
		}
		if len(methods) == 0 {
			methods = []string{string(model.MethodCash)}
		}

		cfg.TheaterId = theaterID
		cfg.Channel = channel
		cfg.Provider = input.Provider
		cfg.Enabled = input.Enabled
		cfg.AcceptedMethods = strings.Join(methods, ",")
		cfg.KeyId = input.KeyId
		cfg.MerchantId = input.MerchantId
		cfg.Website = input.Website
		cfg.SaltIndex = input.SaltIndex
		keep(&cfg.KeySecret, input.KeySecret)
		keep(&cfg.MerchantKey, input.MerchantKey)
		keep(&cfg.SaltKey, input.SaltKey)

		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}

	if err := r.Invalidate(ctx, theaterID, channel); err != nil {
		log.Warnf("gateway config invalidate theater=%d channel=%s: %v", theaterID, channel, err)
	}
	return &cfg, nil
}

func keep(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
