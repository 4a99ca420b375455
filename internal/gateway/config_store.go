package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"marketpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	riskConfigRedisKey = "gateway:risk_config"

	// RiskConfigChannel is the PubSub channel the analysis daemon watches
	// for live risk-config reloads.
	RiskConfigChannel = "config:risk"
)

// ConfigStore owns the account risk configuration: it serves reads,
// persists writes to Redis and pushes updates to the analysis daemon and
// the connected dashboards.
type ConfigStore struct {
	hub *Hub
	rdb *goredis.Client
}

// NewConfigStore creates a ConfigStore backed by the given Hub.
func NewConfigStore(hub *Hub, rdb *goredis.Client) *ConfigStore {
	return &ConfigStore{hub: hub, rdb: rdb}
}

// Load restores a previously persisted risk config from Redis. Called
// once at gateway startup; reports whether anything was restored.
func (cs *ConfigStore) Load(ctx context.Context) bool {
	raw, err := cs.rdb.Get(ctx, riskConfigRedisKey).Result()
	if err != nil {
		return false
	}
	var cfg model.RiskConfig
	if json.Unmarshal([]byte(raw), &cfg) != nil {
		return false
	}
	cs.hub.mu.Lock()
	cs.hub.riskConfig = cfg
	cs.hub.mu.Unlock()
	log.Printf("[config_store] restored risk config from Redis: capital=%.2f", cfg.Capital)
	return true
}

// Get returns the current risk configuration.
func (cs *ConfigStore) Get() model.RiskConfig {
	cs.hub.mu.RLock()
	defer cs.hub.mu.RUnlock()
	return cs.hub.riskConfig
}

// Set makes cfg the active risk configuration, persists it and notifies
// both the analysis daemon (via PubSub) and the connected WS clients.
func (cs *ConfigStore) Set(cfg model.RiskConfig) {
	cs.hub.mu.Lock()
	cs.hub.riskConfig = cfg
	cs.hub.mu.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	cs.persist(data)

	frame, _ := json.Marshal(map[string]interface{}{
		"type":   "config_update",
		"config": cfg,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	})
	cs.hub.fanout(frame, nil)
}

// persist writes the config to Redis and publishes it for live reload.
// Failures are logged, not returned: the in-memory config already took
// effect and the caller has nothing further to do.
func (cs *ConfigStore) persist(data []byte) {
	if cs.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cs.rdb.Set(ctx, riskConfigRedisKey, data, 0).Err(); err != nil {
		log.Printf("[config_store] WARNING: failed to persist risk config to Redis: %v", err)
	}
	if err := cs.rdb.Publish(ctx, RiskConfigChannel, data).Err(); err != nil {
		log.Printf("[config_store] WARNING: failed to publish risk config: %v", err)
	}
}
