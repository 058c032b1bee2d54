package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitalvas/pachinko/workers"
)

const (
	defaultKeyPrefix = "pachinko:"
	defaultChannel   = "pachinko:broadcast"
)

// RedisBackend distributes room membership and broadcast across processes.
// Connection handles stay process-local; membership is mirrored into Redis
// sets so every process sees the full room namespace, and broadcasts are
// relayed through a pub/sub channel. Run Subscriber as a background worker
// in every process to receive relayed messages.
type RedisBackend struct {
	local    *LocalBackend
	client   redis.UniversalClient
	prefix   string
	channel  string
	instance string
	logger   *zap.Logger
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix sets the prefix for all Redis keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) {
		b.prefix = prefix
	}
}

// WithChannel sets the pub/sub channel broadcasts are relayed on.
func WithChannel(channel string) RedisOption {
	return func(b *RedisBackend) {
		b.channel = channel
	}
}

// WithRedisLogger sets the logger for relay and delivery failures.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(b *RedisBackend) {
		b.logger = logger
	}
}

// NewRedisBackend returns a backend over client. Each backend instance
// carries a unique identity so it can ignore its own published messages.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		local:    NewLocalBackend(),
		client:   client,
		prefix:   defaultKeyPrefix,
		channel:  defaultChannel,
		instance: uuid.NewString(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) roomKey(room string) string {
	return b.prefix + "room:" + room
}

func (b *RedisBackend) indexKey() string {
	return b.prefix + "rooms"
}

// Add registers a process-local connection.
func (b *RedisBackend) Add(ctx context.Context, id string, conn Conn) error {
	return b.local.Add(ctx, id, conn)
}

// Remove deregisters the connection and clears its membership both locally
// and in Redis.
func (b *RedisBackend) Remove(ctx context.Context, id string) error {
	for _, room := range b.local.joinedRooms(id) {
		if err := b.client.SRem(ctx, b.roomKey(room), id).Err(); err != nil {
			b.logger.Warn("redis membership cleanup failed",
				zap.String("room", room), zap.String("conn", id), zap.Error(err))
		}
	}
	return b.local.Remove(ctx, id)
}

// Lookup returns a process-local connection handle.
func (b *RedisBackend) Lookup(ctx context.Context, id string) (Conn, error) {
	return b.local.Lookup(ctx, id)
}

// Join records membership locally and mirrors it into Redis.
func (b *RedisBackend) Join(ctx context.Context, id, room string) error {
	if err := b.local.Join(ctx, id, room); err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.SAdd(ctx, b.roomKey(room), id)
	pipe.SAdd(ctx, b.indexKey(), room)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rooms: mirroring join of %q to redis: %w", room, err)
	}
	return nil
}

// Leave removes membership locally and from Redis, dropping the room from
// the index once its set is empty.
func (b *RedisBackend) Leave(ctx context.Context, id, room string) error {
	if err := b.local.Leave(ctx, id, room); err != nil {
		return err
	}
	key := b.roomKey(room)
	if err := b.client.SRem(ctx, key, id).Err(); err != nil {
		return fmt.Errorf("rooms: mirroring leave of %q to redis: %w", room, err)
	}
	size, err := b.client.SCard(ctx, key).Result()
	if err == nil && size == 0 {
		_ = b.client.SRem(ctx, b.indexKey(), room).Err()
	}
	return nil
}

// Members returns the room's process-local members; remote members are
// reached through Publish.
func (b *RedisBackend) Members(ctx context.Context, room string) ([]string, error) {
	return b.local.Members(ctx, room)
}

// Rooms returns every room name with the given prefix across all
// processes.
func (b *RedisBackend) Rooms(ctx context.Context, prefix string) ([]string, error) {
	names, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("rooms: listing rooms from redis: %w", err)
	}
	out := names[:0]
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

// wireMessage is the relay envelope published between processes.
type wireMessage struct {
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Data   []byte `json:"data"`
}

// Publish relays a broadcast to the other processes.
func (b *RedisBackend) Publish(ctx context.Context, room string, message []byte) error {
	payload, err := json.Marshal(wireMessage{
		Origin: b.instance,
		Room:   room,
		Data:   message,
	})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("rooms: publishing to %q: %w", b.channel, err)
	}
	return nil
}

// Subscriber returns a worker that receives relayed broadcasts and delivers
// them to this process's members of the target room. Messages this instance
// published itself are skipped.
func (b *RedisBackend) Subscriber() workers.Worker {
	return func(ctx context.Context) error {
		sub := b.client.Subscribe(ctx, b.channel)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				var env wireMessage
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("malformed relay message", zap.Error(err))
					continue
				}
				if env.Origin == b.instance {
					continue
				}
				b.deliverLocal(ctx, env.Room, env.Data)
			}
		}
	}
}

func (b *RedisBackend) deliverLocal(ctx context.Context, room string, message []byte) {
	ids, _ := b.local.Members(ctx, room)
	for _, id := range ids {
		conn, err := b.local.Lookup(ctx, id)
		if err != nil {
			continue
		}
		if err := conn.Send(ctx, message); err != nil {
			b.logger.Warn("relayed delivery failed",
				zap.String("room", room), zap.String("conn", id), zap.Error(err))
		}
	}
}
