package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Expirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

type Config struct {
	Interval time.Duration
}

// Sweeper periodically switches off subscriptions whose expiry has passed,
// so lapsed users are cleaned up even when they never write again.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewSweeper(expirer Expirer, log zerolog.Logger, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Sweeper{
		expirer:  expirer,
		interval: config.Interval,
		log:      log.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	s.wg.Add(1)
	go s.loop(s.ctx)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireLapsed(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("sweep failed")
		}
		return
	}
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("lapsed subscriptions switched off")
	}
}
