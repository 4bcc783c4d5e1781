// Package insights derives sessions and aggregate user metrics for a tenant
// from its raw analytics events.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"beacon/api/models"
	"beacon/api/observability"
	"beacon/api/session"
)

var (
	// ErrNotFound is returned when the identity has no events in the partition.
	ErrNotFound = errors.New("not found")
	// ErrAggregationFailed wraps every store or data failure.
	ErrAggregationFailed = errors.New("aggregation failed")
)

// EventStore is the read side of the event store.
type EventStore interface {
	SelectEventsForIdentity(ctx context.Context, env models.Environment, apiKey, identifyID string, limit int) ([]models.AnalyticsEvent, error)
	CountDistinctIdentities(ctx context.Context, env models.Environment, apiKey string, start, end time.Time) (uint64, error)
	SelectFirstEventPerIdentity(ctx context.Context, env models.Environment, apiKey string, start, end time.Time, limit int) ([]models.IdentityFirstSeen, error)
	SelectLatestEventPerIdentity(ctx context.Context, env models.Environment, apiKey string, identifyIDs []string) ([]models.ProfileRow, error)
	GroupErrorCountsByDayAndMessage(ctx context.Context, env models.Environment, apiKey string, start, end time.Time) ([]models.ErrorCountRow, error)
}

// TenantResolver maps an API key to its tenant and partition.
type TenantResolver interface {
	Resolve(ctx context.Context, apiKey string) (models.Tenant, error)
}

// Options are the tunables of the service.
type Options struct {
	SessionInactivityThreshold time.Duration
	SessionMaxEvents           int
	NewJoinersLimit            int
	ActiveNowWindow            time.Duration
}

// DefaultOptions returns the reference tunables.
func DefaultOptions() Options {
	return Options{
		SessionInactivityThreshold: session.DefaultInactivityThreshold,
		SessionMaxEvents:           6000,
		NewJoinersLimit:            10,
		ActiveNowWindow:            2 * time.Minute,
	}
}

// Service answers the insights read operations. It holds no per-request
// state; every call recomputes from the store.
type Service struct {
	tenants TenantResolver
	store   EventStore
	opts    Options
	log     *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(tenants TenantResolver, store EventStore, opts Options, log *logrus.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		tenants: tenants,
		store:   store,
		opts:    opts,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Overview returns total users plus MAU and DAU with their change against
// the preceding window of equal length.
func (s *Service) Overview(ctx context.Context, apiKey string) (overview models.Overview, err error) {
	const op = "overview"
	defer s.observe(op, time.Now(), &err)

	t, err := s.tenants.Resolve(ctx, apiKey)
	if err != nil {
		return models.Overview{}, err
	}

	now := s.now()
	mau := Trailing(now, Month)
	dau := Trailing(now, Day)
	windows := []Window{AllTime(now), mau, mau.Previous(), dau, dau.Previous()}
	counts := make([]uint64, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		g.Go(func() error {
			n, err := s.store.CountDistinctIdentities(gctx, t.Environment, t.APIKey, w.Start, w.End)
			if err != nil {
				return s.fail(op, t, err, logrus.Fields{
					"window_start": w.Start,
					"window_end":   w.End,
				})
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Overview{}, err
	}

	return models.Overview{
		TotalUsers: counts[0],
		MAU:        counts[1],
		MAUChange:  PercentChange(counts[1], counts[2]),
		DAU:        counts[3],
		DAUChange:  PercentChange(counts[3], counts[4]),
	}, nil
}

// SessionsFor rebuilds the sessions of one identity, most recent first.
func (s *Service) SessionsFor(ctx context.Context, apiKey, identifyID string) (sessions []session.Session, err error) {
	const op = "sessions"
	defer s.observe(op, time.Now(), &err)

	t, err := s.tenants.Resolve(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	events, err := s.store.SelectEventsForIdentity(ctx, t.Environment, t.APIKey, identifyID, s.opts.SessionMaxEvents)
	if err != nil {
		return nil, s.fail(op, t, err, logrus.Fields{"identify_id": identifyID})
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: identity %s", ErrNotFound, identifyID)
	}

	sessions = session.Segment(events, s.opts.SessionInactivityThreshold)
	s.metrics.ObserveSessions(len(sessions))
	return sessions, nil
}

// NewJoiners returns the newest identities of each cohort. The three
// buckets are queried concurrently; any failure fails the whole call.
func (s *Service) NewJoiners(ctx context.Context, apiKey string) (joiners map[Bucket][]models.ProfileSummary, err error) {
	const op = "new_joiners"
	defer s.observe(op, time.Now(), &err)

	t, err := s.tenants.Resolve(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	joiners = make(map[Bucket][]models.ProfileSummary, len(Buckets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range Buckets {
		g.Go(func() error {
			profiles, err := s.bucket(gctx, t, b, now)
			if err != nil {
				return s.fail(op, t, err, logrus.Fields{"bucket": string(b)})
			}
			mu.Lock()
			joiners[b] = profiles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return joiners, nil
}

func (s *Service) bucket(ctx context.Context, t models.Tenant, b Bucket, now time.Time) ([]models.ProfileSummary, error) {
	w, err := b.Window(now)
	if err != nil {
		return nil, err
	}

	firsts, err := s.store.SelectFirstEventPerIdentity(ctx, t.Environment, t.APIKey, w.Start, w.End, s.opts.NewJoinersLimit)
	if err != nil {
		return nil, err
	}
	if len(firsts) == 0 {
		return []models.ProfileSummary{}, nil
	}

	ids := make([]string, len(firsts))
	for i, f := range firsts {
		if got, ok := BucketFor(f.FirstSeen, now); !ok || got != b {
			return nil, fmt.Errorf("identity %s first seen at %s is outside bucket %s", f.IdentifyID, f.FirstSeen, b)
		}
		ids[i] = f.IdentifyID
	}
	rows, err := s.store.SelectLatestEventPerIdentity(ctx, t.Environment, t.APIKey, ids)
	if err != nil {
		return nil, err
	}
	return buildProfiles(firsts, rows)
}

// DailyErrors returns error counts per UTC day and message for the last
// seven calendar days, oldest day first.
func (s *Service) DailyErrors(ctx context.Context, apiKey string) (days []DailyErrors, err error) {
	const op = "daily_errors"
	defer s.observe(op, time.Now(), &err)

	t, err := s.tenants.Resolve(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	w := dailyErrorsWindow(s.now())
	rows, err := s.store.GroupErrorCountsByDayAndMessage(ctx, t.Environment, t.APIKey, w.Start, w.End)
	if err != nil {
		return nil, s.fail(op, t, err, logrus.Fields{
			"window_start": w.Start,
			"window_end":   w.End,
		})
	}
	return groupDailyErrors(rows, w), nil
}

// ActiveNow counts identities with any event inside the active window.
func (s *Service) ActiveNow(ctx context.Context, apiKey string) (count uint64, err error) {
	const op = "active_now"
	defer s.observe(op, time.Now(), &err)

	t, err := s.tenants.Resolve(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	w := Trailing(s.now(), s.opts.ActiveNowWindow)
	count, err = s.store.CountDistinctIdentities(ctx, t.Environment, t.APIKey, w.Start, w.End)
	if err != nil {
		return 0, s.fail(op, t, err, logrus.Fields{
			"window_start": w.Start,
			"window_end":   w.End,
		})
	}
	return count, nil
}

// fail logs err with the request context and returns it wrapped as
// ErrAggregationFailed.
func (s *Service) fail(op string, t models.Tenant, err error, fields logrus.Fields) error {
	entry := s.log.WithFields(logrus.Fields{
		"tenant":      t.ID,
		"environment": t.Environment.String(),
		"operation":   op,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.WithError(err).Error("insights aggregation failed")
	return fmt.Errorf("%w: %s: %w", ErrAggregationFailed, op, err)
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, start, *err)
}
