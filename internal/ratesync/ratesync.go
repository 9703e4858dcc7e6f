package ratesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/clock"
	fxratedomain "github.com/smallbiznis/classbill/internal/fxrate/domain"
	"github.com/smallbiznis/classbill/internal/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	fetchTimeout = 30 * time.Second
	guardKey     = "ratesync:fetch"
	guardTTL     = time.Minute
)

// Config controls the currency snapshot fetch loop. An empty SourceURL
// disables the syncer; pricing then falls back to the newest snapshot
// already on disk, or 1:1 parity when there is none.
type Config struct {
	SourceURL string
	Base      string
	Interval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Base == "" {
		c.Base = "USD"
	}
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	return c
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Rates  fxratedomain.Repository
	Locker *lock.Locker `optional:"true"`
	Config Config
}

type Syncer struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	rates  fxratedomain.Repository
	locker *lock.Locker
	cfg    Config
	client *http.Client
}

func New(p Params) *Syncer {
	return &Syncer{
		db:     p.DB,
		log:    p.Log.Named("ratesync"),
		genID:  p.GenID,
		clock:  p.Clock,
		rates:  p.Rates,
		locker: p.Locker,
		cfg:    p.Config.withDefaults(),
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (s *Syncer) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("currency rate sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fetches one snapshot and appends it to currency_rates. A short
// redis guard keeps replicas from hammering the source in lockstep; when
// the guard is unavailable the fetch proceeds anyway, duplicates are
// harmless because the newest snapshot wins.
func (s *Syncer) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, guardKey, guardTTL)
		if err != nil {
			s.log.Warn("rate sync guard unavailable, proceeding", zap.Error(err))
		} else if !ok {
			s.log.Debug("rate sync already running elsewhere, skipping")
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), guardKey, token); err != nil {
					s.log.Warn("failed to release rate sync guard", zap.Error(err))
				}
			}()
		}
	}

	rates, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	snapshot := &fxratedomain.CurrencyRate{
		ID:        s.genID.Generate(),
		Base:      s.cfg.Base,
		Rates:     rates,
		FetchedAt: s.clock.Now().UTC(),
	}
	if err := s.rates.Insert(ctx, s.db, snapshot); err != nil {
		return err
	}

	s.log.Info("currency rate snapshot stored",
		zap.String("base", s.cfg.Base),
		zap.Int("currencies", len(rates)))
	return nil
}

func (s *Syncer) fetch(ctx context.Context) (datatypes.JSONMap, error) {
	endpoint := s.cfg.SourceURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&base=" + url.QueryEscape(s.cfg.Base)
	} else {
		endpoint += "?base=" + url.QueryEscape(s.cfg.Base)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Rates           map[string]float64 `json:"rates"`
		ConversionRates map[string]float64 `json:"conversion_rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding rate source payload: %w", err)
	}

	source := payload.Rates
	if len(source) == 0 {
		source = payload.ConversionRates
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("rate source payload has no rates")
	}

	rates := datatypes.JSONMap{}
	for code, value := range source {
		if value > 0 {
			rates[strings.ToUpper(code)] = value
		}
	}
	return rates, nil
}
