package snapshot

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

func init() {
	factory.RegisterWriter("redis", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewRedisStore(def.Redis, interval)
	})
}

const (
	redisKeyPrefix = "fsfw|snapshot|"
	redisMetaKey   = "fsfw|snapshot_meta"
)

// RedisStore keeps the latest snapshot in Redis: one hash per switch at
// "fsfw|snapshot|<dpid>" whose fields are "sliced|<slice>|<position>" or
// "mapped|<position>", plus a metadata hash.
type RedisStore struct {
	client   *redis.Client
	interval time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig, interval time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (s *RedisStore) GetInterval() time.Duration {
	return s.interval
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Write replaces the stored snapshot in one MULTI/EXEC transaction.
func (s *RedisStore) Write(snap *core.Snapshot, timestamp string) error {
	ctx := context.Background()
	old, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list snapshot keys: %w", err)
	}

	hashes, err := encodeRedisHashes(snap)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if len(old) > 0 {
		pipe.Del(ctx, old...)
	}
	for key, fields := range hashes {
		args := make([]interface{}, 0, len(fields)*2)
		for f, v := range fields {
			args = append(args, f, v)
		}
		pipe.HSet(ctx, key, args...)
	}
	pipe.HSet(ctx, redisMetaKey,
		"taken", snap.Taken.UTC().Format(time.RFC3339Nano),
		"next_id", strconv.FormatUint(uint64(snap.NextID), 10),
		"written_at", timestamp,
	)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads the stored snapshot.
func (s *RedisStore) Load() (*core.Snapshot, error) {
	ctx := context.Background()
	meta, err := s.client.HGetAll(ctx, redisMetaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrNoSnapshot
	}

	keys, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list snapshot keys: %w", err)
	}
	hashes := make(map[string]map[string]string, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		hashes[key] = fields
	}
	return decodeRedisHashes(meta, hashes)
}

// encodeRedisHashes maps a snapshot to hash key -> field -> JSON record.
func encodeRedisHashes(snap *core.Snapshot) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, r := range flatten(snap) {
		key := redisKeyPrefix + dpidKey(r.SwitchID)
		if out[key] == nil {
			out[key] = make(map[string]string)
		}
		body, err := json.Marshal(r.Record)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %d: %w", r.Record.ID, err)
		}
		out[key][redisField(r)] = string(body)
	}
	return out, nil
}

func redisField(r row) string {
	if r.Kind == kindSliced {
		return fmt.Sprintf("%s|%s|%d", kindSliced, r.Slice, r.Position)
	}
	return fmt.Sprintf("%s|%d", kindMapped, r.Position)
}

// decodeRedisHashes rebuilds a snapshot from the metadata hash and the
// per-switch hashes.
func decodeRedisHashes(meta map[string]string, hashes map[string]map[string]string) (*core.Snapshot, error) {
	var flat []row
	for key, fields := range hashes {
		sw, err := parseDPIDKey(strings.TrimPrefix(key, redisKeyPrefix))
		if err != nil {
			return nil, err
		}
		for field, body := range fields {
			r := row{SwitchID: sw}
			// Slice names may contain '|': the kind is first and the position last.
			first := strings.Index(field, "|")
			last := strings.LastIndex(field, "|")
			if first < 0 {
				return nil, fmt.Errorf("invalid snapshot field %q in %s", field, key)
			}
			r.Kind = field[:first]
			if r.Kind == kindSliced {
				if last == first {
					return nil, fmt.Errorf("invalid snapshot field %q in %s", field, key)
				}
				r.Slice = field[first+1 : last]
			}
			if r.Position, err = strconv.Atoi(field[last+1:]); err != nil {
				return nil, fmt.Errorf("invalid position in field %q: %w", field, err)
			}
			if err := json.Unmarshal([]byte(body), &r.Record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal record in %s: %w", key, err)
			}
			flat = append(flat, r)
		}
	}

	snap := assemble(flat)
	next, err := strconv.ParseUint(meta["next_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid next_id %q: %w", meta["next_id"], err)
	}
	snap.NextID = core.RecordID(next)
	if snap.Taken, err = time.Parse(time.RFC3339Nano, meta["taken"]); err != nil {
		return nil, fmt.Errorf("invalid snapshot time %q: %w", meta["taken"], err)
	}
	return snap, nil
}
