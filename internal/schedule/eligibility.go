package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bookmail/internal/catalog"
)

// Resolver decides which assignments are due at a given instant. Read-only:
// calling it twice with the same instant yields the same set.
type Resolver struct {
	Store Store
	Log   zerolog.Logger
}

// FindEligible renders checkInstant in each candidate's timezone and keeps
// assignments whose delivery times contain that HH:MM. Matching is
// minute-level; an hourly trigger simply only ever observes :00 instants.
// Users without a timezone are skipped, not errors.
func (r *Resolver) FindEligible(ctx context.Context, checkInstant time.Time) ([]Eligible, error) {
	candidates, err := r.Store.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}

	check := checkInstant.Truncate(time.Minute)
	var eligible []Eligible
	for _, c := range candidates {
		if c.Timezone == nil || *c.Timezone == "" {
			continue
		}
		local, err := LocalClock(check, *c.Timezone)
		if err != nil {
			// Bad timezone on a row must not poison the whole cycle.
			r.Log.Warn().Str("email", c.UserEmail).Str("timezone", *c.Timezone).
				Msg("skipping candidate with unresolvable timezone")
			continue
		}

		times := c.DeliveryTimes
		if len(times) == 0 {
			times = []string{catalog.DefaultDeliveryTime}
		}
		for _, dt := range times {
			h, m, err := ParseClock(dt)
			if err != nil {
				r.Log.Warn().Str("email", c.UserEmail).Str("delivery_time", dt).
					Msg("skipping malformed delivery time")
				continue
			}
			if formatClock(h, m) == local {
				eligible = append(eligible, Eligible{
					Candidate:   c,
					MatchedTime: formatClock(h, m),
					LocalTime:   local,
				})
				break
			}
		}
	}
	return eligible, nil
}

func formatClock(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}
