package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema_pos/constants"
	"cinema_pos/ledger"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const SweeperActor = "system:sweeper"

var ErrLocked = errors.New("lock is held by another process")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a gocron.Locker backed by SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLock{rdb: l.rdb, key: key, token: token}, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// Sweeper expires reservations whose TTL elapsed, one theater at a time
// under a per-theater lock.
type Sweeper struct {
	coord     *Coordinator
	ledger    *ledger.Ledger
	locker    gocron.Locker
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(coord *Coordinator, l *ledger.Ledger, locker gocron.Locker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{coord: coord, ledger: l, locker: locker, interval: interval}
}

func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("reservation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.scheduler = sched
	sched.Start()
	log.Infof("reservation sweeper started (every %s)", s.interval)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	n, err := s.Sweep(ctx)
	if err != nil {
		log.Errorw("reservation sweep failed", "error", err)
		return
	}
	if n > 0 {
		log.Infof("reservation sweep expired %d orders", n)
	}
}

// Sweep processes every theater with open reservations and returns how many
// orders it expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	theaters, err := s.ledger.TheatersWithOpen(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, id := range theaters {
		n, err := s.sweepTheater(ctx, id)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("theater %d: %w", id, err))
		}
	}
	return total, errors.Join(errs...)
}

func (s *Sweeper) sweepTheater(ctx context.Context, theaterID uint) (int, error) {
	if s.locker != nil {
		lock, err := s.locker.Lock(ctx, fmt.Sprintf(constants.RESERVATION_SWEEP_LOCK, theaterID))
		if errors.Is(err, ErrLocked) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				log.Warnw("release sweep lock failed", "theaterId", theaterID, "error", err)
			}
		}()
	}

	ids, err := s.ledger.Expired(ctx, theaterID, s.ledger.Now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.coord.Expire(ctx, id, SweeperActor); err != nil {
			log.Errorw("expire order failed", "orderId", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
