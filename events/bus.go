package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cinema_pos/constants"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Consumer groups reading every theater stream.
const (
	GroupDashboard = "dashboard"
	GroupNotify    = "notify"
	GroupPrint     = "print"
	GroupMail      = "mail"
)

const (
	defaultMaxLen = 10000
	seenTTL       = 48 * time.Hour
	maxAttempts   = 5
	retryDelay    = time.Second
)

// Message is one order event read back from a theater stream.
type Message struct {
	StreamID  string
	EventID   uint
	TheaterId uint
	OrderId   string
	Version   int64
	Type      string
	Status    model.OrderStatus
	Reason    string
	Order     *model.Order
}

type Handler func(ctx context.Context, msg Message) error

func StreamKey(theaterID uint) string {
	return fmt.Sprintf(constants.ORDER_STREAM_KEY, theaterID)
}

// RedisBus publishes outbox events to per-theater Redis streams.
type RedisBus struct {
	rdb    *redis.Client
	maxLen int64
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb, maxLen: defaultMaxLen}
}

func (b *RedisBus) Publish(ctx context.Context, ev model.OrderEvent) error {
	key := StreamKey(ev.TheaterId)
	pipe := b.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{
			"eventId":   ev.ID,
			"theaterId": ev.TheaterId,
			"orderId":   ev.OrderId,
			"version":   ev.Version,
			"type":      ev.Type,
			"status":    string(ev.Status),
			"reason":    ev.Reason,
			"payload":   ev.Payload,
		},
	})
	pipe.SAdd(ctx, constants.STREAM_INDEX_KEY, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event %d: %w", ev.ID, err)
	}
	return nil
}

func decode(stream string, m redis.XMessage) (Message, error) {
	str := func(k string) string {
		v, _ := m.Values[k].(string)
		return v
	}
	msg := Message{
		StreamID: m.ID,
		OrderId:  str("orderId"),
		Type:     str("type"),
		Status:   model.OrderStatus(str("status")),
		Reason:   str("reason"),
	}
	if msg.OrderId == "" {
		return msg, fmt.Errorf("%s %s: missing orderId", stream, m.ID)
	}
	version, err := strconv.ParseInt(str("version"), 10, 64)
	if err != nil {
		return msg, fmt.Errorf("%s %s: bad version: %w", stream, m.ID, err)
	}
	msg.Version = version
	if id, err := strconv.ParseUint(str("eventId"), 10, 64); err == nil {
		msg.EventID = uint(id)
	}
	if id, err := strconv.ParseUint(str("theaterId"), 10, 64); err == nil {
		msg.TheaterId = uint(id)
	}
	if payload := str("payload"); payload != "" {
		var order model.Order
		if err := json.Unmarshal([]byte(payload), &order); err != nil {
			return msg, fmt.Errorf("%s %s: bad payload: %w", stream, m.ID, err)
		}
		msg.Order = &order
	}
	return msg, nil
}

// Consumer reads every theater stream as one member of a consumer group.
// Handlers see each (orderId, version) at most once per group unless they fail.
// A failed entry stays pending and is retried after a delay that doubles with
// each attempt.
type Consumer struct {
	rdb        *redis.Client
	group      string
	name       string
	handler    Handler
	block      time.Duration
	retryDelay time.Duration
	joined     map[string]bool
	failures   map[string]int
	retryAt    map[string]time.Time
}

func (b *RedisBus) Consumer(group, name string, h Handler) *Consumer {
	return &Consumer{
		rdb:        b.rdb,
		group:      group,
		name:       name,
		handler:    h,
		block:      2 * time.Second,
		retryDelay: retryDelay,
		joined:     make(map[string]bool),
		failures:   make(map[string]int),
		retryAt:    make(map[string]time.Time),
	}
}

func (c *Consumer) WithBlock(d time.Duration) *Consumer {
	c.block = d
	return c
}

func (c *Consumer) WithRetryDelay(d time.Duration) *Consumer {
	c.retryDelay = d
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	log.Infof("event consumer %s/%s started", c.group, c.name)
	for ctx.Err() == nil {
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("event consumer poll failed", "group", c.group, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll handles this consumer's pending entries that are due for a retry and
// otherwise waits up to the block duration for new ones. It returns how many
// entries it handed to the handler.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.rdb.SMembers(ctx, constants.STREAM_INDEX_KEY).Result()
	if err != nil {
		return 0, err
	}
	if len(streams) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(c.block):
		}
		return 0, nil
	}
	sort.Strings(streams)
	for _, s := range streams {
		if c.joined[s] {
			continue
		}
		err := c.rdb.XGroupCreateMkStream(ctx, s, c.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return 0, fmt.Errorf("join %s: %w", s, err)
		}
		c.joined[s] = true
	}

	n, err := c.read(ctx, streams, "0", -1)
	if err != nil || n > 0 {
		return n, err
	}
	return c.read(ctx, streams, ">", c.block)
}

func (c *Consumer) read(ctx context.Context, streams []string, id string, block time.Duration) (int, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, id)
	}
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  args,
		Count:    100,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	now := time.Now()
	for _, st := range res {
		for _, m := range st.Messages {
			if at, ok := c.retryAt[m.ID]; ok && now.Before(at) {
				continue
			}
			n++
			c.handle(ctx, st.Stream, m)
		}
	}
	return n, nil
}

func (c *Consumer) handle(ctx context.Context, stream string, m redis.XMessage) {
	msg, err := decode(stream, m)
	if err != nil {
		log.Errorw("dropping undecodable event", "group", c.group, "error", err)
		c.ack(ctx, stream, m.ID)
		return
	}

	seen := fmt.Sprintf(constants.EVENT_SEEN_KEY, c.group, msg.OrderId, msg.Version)
	if n, err := c.rdb.Exists(ctx, seen).Result(); err == nil && n > 0 {
		c.ack(ctx, stream, m.ID)
		return
	}

	if err := c.handler(ctx, msg); err != nil {
		attempts := c.failures[m.ID] + 1
		c.failures[m.ID] = attempts
		if attempts < maxAttempts {
			c.retryAt[m.ID] = time.Now().Add(c.retryDelay << (attempts - 1))
			log.Warnw("event handler failed", "group", c.group, "orderId", msg.OrderId, "version", msg.Version, "attempt", attempts, "error", err)
			return
		}
		log.Errorw("event handler gave up", "group", c.group, "orderId", msg.OrderId, "version", msg.Version, "error", err)
	}
	delete(c.failures, m.ID)
	delete(c.retryAt, m.ID)

	if err := c.rdb.Set(ctx, seen, 1, seenTTL).Err(); err != nil {
		log.Warnw("mark event seen failed", "key", seen, "error", err)
	}
	c.ack(ctx, stream, m.ID)
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.rdb.XAck(ctx, stream, c.group, id).Err(); err != nil {
		log.Warnw("ack event failed", "stream", stream, "id", id, "error", err)
	}
}
