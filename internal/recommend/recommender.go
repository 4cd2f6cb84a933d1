// Package recommend ranks alternatives for a request that cannot be
// satisfied as asked: other equipment for the same interval, or the same
// equipment at a nearby interval.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rental-availability-backend/internal/availability"
	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/domain"
)

const (
	weightCategory = 0.6
	weightRate     = 0.3
	weightID       = 0.1

	matchSameCategory = 1.0
	matchEquivalent   = 0.5
)

// Options bounds the search.
type Options struct {
	Horizon     time.Duration
	Step        time.Duration
	TopK        int
	Concurrency int
}

// DefaultOptions returns a 30 day horizon in 12 hour steps, top 5, 8 checks in flight.
func DefaultOptions() Options {
	return Options{
		Horizon:     30 * 24 * time.Hour,
		Step:        12 * time.Hour,
		TopK:        5,
		Concurrency: 8,
	}
}

// Recommender is read-only: it never writes to the index.
type Recommender struct {
	catalog catalog.Reader
	calc    *availability.Calculator
	clock   domain.Clock
	opts    Options
	logger  *slog.Logger
}

// New creates a recommender. A nil clock disables the "not in the past"
// filter on backward shifts.
func New(cat catalog.Reader, calc *availability.Calculator, clock domain.Clock, opts Options, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.Horizon <= 0 {
		opts.Horizon = def.Horizon
	}
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Recommender{catalog: cat, calc: calc, clock: clock, opts: opts, logger: logger}
}

// Suggest returns equipment suggestions followed by timing suggestions. A
// request that can already be satisfied as asked gets none.
func (r *Recommender) Suggest(ctx context.Context, req domain.ReservationRequest) ([]domain.AlternativeSuggestion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ResourceID == "" {
		return nil, fmt.Errorf("%w: alternatives need a resource id", domain.ErrMissingResource)
	}
	orig, err := r.catalog.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	asked, err := r.calc.Check(orig, req.Interval, req.Quantity, req.ExcludeBookingID)
	if err != nil {
		return nil, err
	}
	if asked.FullyAvailable {
		return nil, nil
	}

	equipment, err := r.EquipmentAxis(ctx, orig, req)
	if err != nil {
		return nil, err
	}
	timing, err := r.TimingAxis(ctx, orig, req)
	if err != nil {
		return nil, err
	}
	return append(equipment, timing...), nil
}

type candidate struct {
	res   domain.EquipmentResource
	match float64
}

// EquipmentAxis looks for other bookable items that are free for the whole
// requested interval.
func (r *Recommender) EquipmentAxis(ctx context.Context, orig domain.EquipmentResource, req domain.ReservationRequest) ([]domain.AlternativeSuggestion, error) {
	candidates, err := r.candidates(ctx, orig)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		free = make(map[string]bool, len(candidates))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.calc.Check(c.res, req.Interval, req.Quantity, req.ExcludeBookingID)
			if err != nil {
				return err
			}
			if res.FullyAvailable {
				mu.Lock()
				free[c.res.ID] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := float64(len(candidates))
	out := make([]domain.AlternativeSuggestion, 0, len(free))
	for rank, c := range candidates {
		if !free[c.res.ID] {
			continue
		}
		score := weightCategory*c.match +
			weightRate*rateProximity(c.res.DailyRate, orig.DailyRate) +
			weightID*(1-float64(rank)/n)
		out = append(out, domain.AlternativeSuggestion{
			ResourceID: c.res.ID,
			Interval:   req.Interval,
			Axis:       domain.AxisEquipment,
			Score:      clamp01(score),
			CostDelta:  (c.res.DailyRate - orig.DailyRate) * req.Interval.Days() * float64(req.Quantity),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	if len(out) > r.opts.TopK {
		out = out[:r.opts.TopK]
	}
	return out, nil
}

// candidates returns bookable siblings and explicit equivalents in
// ascending id order, without the original.
func (r *Recommender) candidates(ctx context.Context, orig domain.EquipmentResource) ([]candidate, error) {
	byID := make(map[string]candidate)
	if orig.CategoryID != "" {
		siblings, err := r.catalog.ListSiblings(ctx, orig.CategoryID)
		if err != nil {
			return nil, err
		}
		for _, s := range siblings {
			byID[s.ID] = candidate{res: s, match: matchSameCategory}
		}
	}
	for _, id := range orig.EquivalentIDs {
		if _, seen := byID[id]; seen {
			continue
		}
		res, err := r.catalog.GetResource(ctx, id)
		if errors.Is(err, domain.ErrResourceNotFound) {
			r.logger.Debug("equivalent resource missing from catalog", "resource", orig.ID, "equivalent", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		match := matchEquivalent
		if res.CategoryID == orig.CategoryID {
			match = matchSameCategory
		}
		byID[id] = candidate{res: res, match: match}
	}

	out := make([]candidate, 0, len(byID))
	for id, c := range byID {
		if id == orig.ID || !c.res.Bookable() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].res.ID < out[j].res.ID })
	return out, nil
}

// TimingAxis shifts the interval by multiples of the step in both directions
// and keeps the nearest fully available shift on each side.
func (r *Recommender) TimingAxis(ctx context.Context, orig domain.EquipmentResource, req domain.ReservationRequest) ([]domain.AlternativeSuggestion, error) {
	if !orig.Bookable() || req.Quantity > orig.Capacity {
		return nil, nil
	}
	var now time.Time
	if r.clock != nil {
		now = r.clock.Now()
	}

	var out []domain.AlternativeSuggestion
	for _, dir := range []time.Duration{1, -1} {
		for offset := r.opts.Step; offset <= r.opts.Horizon; offset += r.opts.Step {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			shift := dir * offset
			iv := req.Interval.Shift(shift)
			if !now.IsZero() && dir < 0 && !iv.End.After(now) {
				break
			}
			res, err := r.calc.Check(orig, iv, req.Quantity, req.ExcludeBookingID)
			if err != nil {
				return nil, err
			}
			if !res.FullyAvailable {
				continue
			}
			out = append(out, domain.AlternativeSuggestion{
				ResourceID: orig.ID,
				Interval:   iv,
				Axis:       domain.AxisTiming,
				Score:      clamp01(1 - float64(offset)/float64(r.opts.Horizon)),
				OffsetDays: shift.Hours() / 24,
			})
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func rateProximity(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi <= 0 {
		return 1
	}
	return clamp01(1 - math.Abs(a-b)/hi)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
