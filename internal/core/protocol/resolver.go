package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Pair is an (employee, unit) combination seen in punch records.
type Pair struct {
	EmployeeID string
	UnitID     string
}

// Source is the read-only data a Resolver searches. Lookups that find
// nothing return a nil tuple and a nil error.
type Source interface {
	// FindProtocolMapping looks the hash up in the persisted token table.
	FindProtocolMapping(ctx context.Context, hash string) (*Tuple, error)
	// FindTupleByPunchProtocol returns the tuple of any punch whose stored
	// protocol contains hash.
	FindTupleByPunchProtocol(ctx context.Context, hash string) (*Tuple, error)
	// ActivePairs lists distinct pairs with punches at or after since.
	ActivePairs(ctx context.Context, since time.Time, limit int) ([]Pair, error)
	EmployeeIDs(ctx context.Context, limit int) ([]string, error)
	UnitIDs(ctx context.Context, limit int) ([]string, error)
}

// SearchLimits bounds the brute-force fallback.
type SearchLimits struct {
	// ActiveMonths is the lookback for phase one (active pairs).
	ActiveMonths int
	// WideMonths is the lookback for phase two (every employee).
	WideMonths int
	// MaxCandidates caps the pairs, employees and units loaded per phase.
	MaxCandidates int
	// MaxHashes caps the digests computed for a single resolution.
	MaxHashes int
}

// DefaultLimits are sized so a miss stays well under a request timeout.
var DefaultLimits = SearchLimits{
	ActiveMonths:  36,
	WideMonths:    24,
	MaxCandidates: 5000,
	MaxHashes:     2_000_000,
}

type Resolver struct {
	source   Source
	limits   SearchLimits
	location *time.Location
	now      func() time.Time
}

type ResolverOption func(*Resolver)

func WithLimits(l SearchLimits) ResolverOption {
	return func(r *Resolver) { r.limits = l }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithLocation sets the zone used to turn "now" into calendar months.
func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) { r.location = loc }
}

func NewResolver(source Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:   source,
		limits:   DefaultLimits,
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns a token into the tuple it was generated from.
func (r *Resolver) Resolve(ctx context.Context, token string) (Tuple, error) {
	parsed, err := Parse(token)
	if err != nil {
		return Tuple{}, err
	}
	if parsed.Legacy {
		return parsed.Tuple, nil
	}

	t, err := r.resolveHash(ctx, parsed.Hash)
	if err != nil {
		return Tuple{}, err
	}
	if err := t.Validate(); err != nil {
		return Tuple{}, err
	}
	return t, nil
}

func (r *Resolver) resolveHash(ctx context.Context, hash string) (Tuple, error) {
	logger := log.Ctx(ctx).With().Str("protocol_hash", hash).Logger()

	mapped, err := r.source.FindProtocolMapping(ctx, hash)
	if err != nil {
		return Tuple{}, fmt.Errorf("failed to look up protocol mapping: %w", err)
	}
	if mapped != nil {
		return *mapped, nil
	}

	stored, err := r.source.FindTupleByPunchProtocol(ctx, hash)
	if err != nil {
		return Tuple{}, fmt.Errorf("failed to look up punch protocol: %w", err)
	}
	if stored != nil {
		return *stored, nil
	}

	s := &search{target: hash, budget: r.limits.MaxHashes}

	now := r.now().In(r.location)
	pairs, err := r.source.ActivePairs(ctx, monthStart(now, r.limits.ActiveMonths-1), r.limits.MaxCandidates)
	if err != nil {
		return Tuple{}, fmt.Errorf("failed to load active pairs: %w", err)
	}
	if t, ok, err := s.run(ctx, withEmptyUnits(pairs), recentMonths(now, r.limits.ActiveMonths)); ok || err != nil {
		return t, err
	}
	logger.Debug().Int("pairs", len(pairs)).Int("hashes", s.computed).Msg("Active pairs exhausted, widening protocol search")

	employees, err := r.source.EmployeeIDs(ctx, r.limits.MaxCandidates)
	if err != nil {
		return Tuple{}, fmt.Errorf("failed to load employees: %w", err)
	}
	units, err := r.source.UnitIDs(ctx, r.limits.MaxCandidates)
	if err != nil {
		return Tuple{}, fmt.Errorf("failed to load units: %w", err)
	}
	months := recentMonths(now, r.limits.WideMonths)
	remaining := (s.budget-s.computed)/max(len(months), 1) + 1
	if t, ok, err := s.run(ctx, crossPairs(employees, units, remaining), months); ok || err != nil {
		return t, err
	}

	if s.exhausted {
		logger.Warn().Int("hashes", s.computed).Msg("Protocol search hit its hash budget")
	}
	return Tuple{}, ErrNotFound
}

// search tracks the digest budget across phases.
type search struct {
	target    string
	budget    int
	computed  int
	exhausted bool
}

func (s *search) run(ctx context.Context, pairs []Pair, months []string) (Tuple, bool, error) {
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return Tuple{}, false, err
		}
		for _, ym := range months {
			if s.computed >= s.budget {
				s.exhausted = true
				return Tuple{}, false, nil
			}
			s.computed++
			t := Tuple{EmployeeID: p.EmployeeID, UnitID: p.UnitID, YearMonth: ym}
			if ShortHash(t) == s.target {
				return t, true, nil
			}
		}
	}
	return Tuple{}, false, nil
}

// withEmptyUnits keeps the given order and adds, once per employee, the
// unit-less variant some tokens were generated with.
func withEmptyUnits(pairs []Pair) []Pair {
	out := make([]Pair, 0, len(pairs)*2)
	seen := make(map[Pair]struct{}, len(pairs)*2)
	add := func(p Pair) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range pairs {
		add(p)
		add(Pair{EmployeeID: p.EmployeeID})
	}
	return out
}

// crossPairs pairs every employee with no unit and with each unit, stopping
// at limit pairs.
func crossPairs(employees, units []string, limit int) []Pair {
	out := make([]Pair, 0, min(limit, len(employees)*(len(units)+1)))
	for _, e := range employees {
		for i := -1; i < len(units); i++ {
			if len(out) >= limit {
				return out
			}
			p := Pair{EmployeeID: e}
			if i >= 0 {
				p.UnitID = units[i]
			}
			out = append(out, p)
		}
	}
	return out
}

// recentMonths returns n "YYYY-MM" labels, newest first, ending at now.
func recentMonths(now time.Time, n int) []string {
	months := make([]string, 0, n)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, -i, 0).Format("2006-01"))
	}
	return months
}

func monthStart(now time.Time, back int) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, -back, 0)
}
