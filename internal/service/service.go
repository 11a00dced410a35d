package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/alerting"
	"soltrader/internal/arbitrage"
	"soltrader/internal/config"
	"soltrader/internal/executor"
	"soltrader/internal/lock"
	"soltrader/internal/marketdata"
	"soltrader/internal/risk"
	"soltrader/internal/routing"
	"soltrader/internal/scheduler"
)

// Service orchestrates market-data sampling, route selection, trade
// execution, risk monitoring, and the independent arbitrage scan.
type Service struct {
	selector    routing.Router
	exec        *executor.Executor
	riskMgr     *risk.Manager
	detector    *arbitrage.Detector
	pairLock    *lock.PairLock
	riskSched   *scheduler.Scheduler
	arbSched    *scheduler.Scheduler
	sampler     *marketdata.Sampler
	sampleSched *scheduler.Scheduler
	notifier    alerting.Notifier
	logger      zerolog.Logger

	pairs       []arbitrage.Pair
	slippageBps int
	autoTrade   bool
	notional    uint64
}

// New constructs the trading service.
func New(cfg *config.Config, selector routing.Router, exec *executor.Executor, riskMgr *risk.Manager, detector *arbitrage.Detector, pairLock *lock.PairLock, riskSched, arbSched *scheduler.Scheduler, sampler *marketdata.Sampler, sampleSched *scheduler.Scheduler, notifier alerting.Notifier, logger zerolog.Logger) (*Service, error) {
	pairs, err := ParsePairs(cfg.Arbitrage.Pairs)
	if err != nil {
		return nil, err
	}

	return &Service{
		selector:    selector,
		exec:        exec,
		riskMgr:     riskMgr,
		detector:    detector,
		pairLock:    pairLock,
		riskSched:   riskSched,
		arbSched:    arbSched,
		sampler:     sampler,
		sampleSched: sampleSched,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		pairs:       pairs,
		slippageBps: cfg.Routing.SlippageBps,
		autoTrade:   cfg.Arbitrage.Execute,
		notional:    cfg.Arbitrage.Notional,
	}, nil
}

// Run starts the monitoring loops and blocks until the context is
// cancelled. Cancellation stops future scheduling without aborting ticks
// in flight.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if s.sampler != nil && s.sampleSched != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.sampleSched.Run(ctx, s.sampler.Tick); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("market data loop terminated")
			}
		}()
	}

	if s.riskSched != nil && s.riskMgr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.riskSched.Run(ctx, s.riskMgr.Tick); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("risk loop terminated")
			}
		}()
	}

	if s.arbSched != nil && s.detector != nil && len(s.pairs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.arbSched.Run(ctx, s.scanPairs); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("arbitrage loop terminated")
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	if recent := s.exec.Recent(1); len(recent) > 0 {
		s.logger.Info().
			Str("state", recent[0].State.String()).
			Str("signature", recent[0].Signature).
			Msg("last trade before shutdown")
	}
	return ctx.Err()
}

// Trade routes and executes a single swap, holding the cross-process pair
// lock for the duration of the execution.
func (s *Service) Trade(ctx context.Context, inputMint, outputMint string, amount uint64) (*executor.TradeResult, error) {
	set, err := s.selector.FindBestRoute(ctx, routing.RouteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: s.slippageBps,
		Kind:        routing.KindMarket,
	})
	if err != nil {
		return nil, err
	}
	if set == nil || set.Best == nil {
		return nil, fmt.Errorf("no route available for %s -> %s", inputMint, outputMint)
	}

	if held := s.exec.Positions().ByMint(outputMint); len(held) > 0 {
		s.logger.Warn().
			Str("mint", outputMint).
			Int("open_positions", len(held)).
			Msg("adding to existing exposure")
	}

	if s.pairLock != nil {
		release, acquired, err := s.pairLock.Acquire(ctx, inputMint, outputMint)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("pair %s:%s is locked by another instance", inputMint, outputMint)
		}
		defer release()
	}

	return s.exec.Execute(ctx, set.Best)
}

func (s *Service) scanPairs(ctx context.Context, at time.Time) error {
	for _, pair := range s.pairs {
		signal, err := s.detector.Scan(ctx, pair)
		if err != nil {
			s.logger.Error().Err(err).Str("base", pair.Base).Str("quote", pair.Quote).Msg("arbitrage scan failed")
			continue
		}
		if signal == nil {
			continue
		}
		s.logger.Info().
			Str("base", pair.Base).
			Str("quote", pair.Quote).
			Str("profit_pct", profitPct(signal.ProfitRatio)).
			Msg("arbitrage signal raised")
		if s.notifier != nil {
			note := alerting.Notification{
				Kind:        alerting.KindArbitrage,
				BaseMint:    signal.Pair.Base,
				QuoteMint:   signal.Pair.Quote,
				BuyVenue:    signal.BuyVenue,
				SellVenue:   signal.SellVenue,
				ProfitRatio: signal.ProfitRatio,
				At:          signal.ObservedAt,
			}
			if err := s.notifier.Notify(ctx, note); err != nil {
				s.logger.Error().Err(err).Msg("failed to dispatch arbitrage alert")
			}
		}
		if s.autoTrade {
			result, err := s.Trade(ctx, pair.Quote, pair.Base, s.notional)
			if err != nil {
				s.logger.Error().Err(err).Str("base", pair.Base).Str("quote", pair.Quote).Msg("arbitrage entry failed")
				continue
			}
			s.logger.Info().
				Str("base", pair.Base).
				Str("signature", result.Signature).
				Str("state", result.State.String()).
				Msg("arbitrage entry executed")
		}
	}
	return nil
}

// profitPct renders a signal's profit ratio as a percentage string.
func profitPct(ratio decimal.Decimal) string {
	return ratio.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).StringFixed(3)
}

// ParsePairs splits BASE/QUOTE pair strings into mint pairs.
func ParsePairs(raw []string) ([]arbitrage.Pair, error) {
	pairs := make([]arbitrage.Pair, 0, len(raw))
	for _, entry := range raw {
		parts := strings.Split(entry, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid arbitrage pair %q, want BASE/QUOTE", entry)
		}
		pairs = append(pairs, arbitrage.Pair{Base: parts[0], Quote: parts[1]})
	}
	return pairs, nil
}
