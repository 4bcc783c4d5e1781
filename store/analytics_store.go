// api/store/analytics_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/api/models"
	"beacon/api/observability"
)

// AnalyticsStore runs the read queries of the insights engine against the
// ClickHouse event tables. Production and test events live in separate,
// schema-identical tables selected by models.Environment.
type AnalyticsStore struct {
	DB      *sql.DB
	metrics *observability.Metrics
}

func NewAnalyticsStore(db *sql.DB, metrics *observability.Metrics) *AnalyticsStore {
	return &AnalyticsStore{
		DB:      db,
		metrics: metrics,
	}
}

// ErrMalformedRow is returned when a stored row violates the event schema.
var ErrMalformedRow = errors.New("malformed event row")

const eventColumns = "id, identify_id, user_id, type, properties, date, info, app_version"

// tableFor returns the event table for env.
func tableFor(env models.Environment) string {
	if env == models.Test {
		return "test_events"
	}
	return "events"
}

// viewFor returns the identified users projection name for env.
func viewFor(env models.Environment, view string) string {
	if env == models.Test {
		return "test_" + view
	}
	return view
}

// SelectEventsForIdentity returns up to limit of the identity's most recent
// events, newest first.
func (s *AnalyticsStore) SelectEventsForIdentity(ctx context.Context, env models.Environment, apiKey, identifyID string, limit int) (events []models.AnalyticsEvent, err error) {
	defer s.observe("events_for_identity", env, time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE api_key = ? AND identify_id = ?
		ORDER BY date DESC, id DESC
		LIMIT ?
	`, eventColumns, tableFor(env))

	rows, err := s.DB.QueryContext(ctx, query, apiKey, identifyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for identity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event      models.AnalyticsEvent
			userID     sql.NullString
			eventType  string
			properties string
			info       string
			appVersion sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.IdentifyID, &userID, &eventType, &properties, &event.Date, &info, &appVersion); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.TenantKey = apiKey
		event.UserID = ptrFromNullString(userID)
		event.Type = models.EventType(eventType)
		if !event.Type.Valid() {
			return nil, fmt.Errorf("%w: event %s has type %q", ErrMalformedRow, event.ID, eventType)
		}
		event.Properties = models.DecodeProperties(properties)
		event.Info = models.DecodeDeviceInfo(info)
		event.AppVersion = ptrFromNullString(appVersion)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during events for identity query: %w", err)
	}

	return events, nil
}

// CountDistinctIdentities counts identities with at least one event in [start, end).
func (s *AnalyticsStore) CountDistinctIdentities(ctx context.Context, env models.Environment, apiKey string, start, end time.Time) (count uint64, err error) {
	defer s.observe("count_distinct_identities", env, time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT uniqExact(identify_id)
		FROM %s
		WHERE api_key = ? AND date >= ? AND date < ?
	`, tableFor(env))

	if err := s.DB.QueryRowContext(ctx, query, apiKey, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct identities: %w", err)
	}

	return count, nil
}

// SelectFirstEventPerIdentity returns identities whose first-ever event falls
// in [start, end), most recent joiner first.
func (s *AnalyticsStore) SelectFirstEventPerIdentity(ctx context.Context, env models.Environment, apiKey string, start, end time.Time, limit int) (firsts []models.IdentityFirstSeen, err error) {
	defer s.observe("first_event_per_identity", env, time.Now(), &err)

	// The date filter only drops events after the window; it cannot move an
	// identity's minimum into the window.
	query := fmt.Sprintf(`
		SELECT identify_id, min(date) AS first_seen
		FROM %s
		WHERE api_key = ? AND date < ?
		GROUP BY identify_id
		HAVING first_seen >= ? AND first_seen < ?
		ORDER BY first_seen DESC, identify_id ASC
		LIMIT ?
	`, tableFor(env))

	rows, err := s.DB.QueryContext(ctx, query, apiKey, end, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query first event per identity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var first models.IdentityFirstSeen
		if err := rows.Scan(&first.IdentifyID, &first.FirstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan first event row: %w", err)
		}
		firsts = append(firsts, first)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during first event query: %w", err)
	}

	return firsts, nil
}

// SelectLatestEventPerIdentity resolves the most recent activity of each
// identity, ordering by (date, id). The user id is the one on the latest row,
// null included; argMax alone would skip nulls. Identify payloads come from
// the latest identify event only.
func (s *AnalyticsStore) SelectLatestEventPerIdentity(ctx context.Context, env models.Environment, apiKey string, identifyIDs []string) (profiles []models.ProfileRow, err error) {
	if len(identifyIDs) == 0 {
		return nil, nil
	}
	defer s.observe("latest_event_per_identity", env, time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT
			identify_id,
			argMax(tuple(user_id), (date, id)).1 AS latest_user_id,
			argMax(info, (date, id)) AS latest_info,
			argMaxIf(properties, (date, id), type = 'identify') AS identify_properties,
			max(date) AS last_seen
		FROM %s
		WHERE api_key = ? AND has(?, identify_id)
		GROUP BY identify_id
	`, tableFor(env))

	rows, err := s.DB.QueryContext(ctx, query, apiKey, identifyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest event per identity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			profile    models.ProfileRow
			userID     sql.NullString
			info       string
			properties string
		)
		if err := rows.Scan(&profile.IdentifyID, &userID, &info, &properties, &profile.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profile.UserID = ptrFromNullString(userID)
		profile.Info = models.DecodeDeviceInfo(info)
		profile.IdentifyProperties = models.DecodeProperties(properties)
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during latest event query: %w", err)
	}

	return profiles, nil
}

// GroupErrorCountsByDayAndMessage counts error events in [start, end) per UTC
// day and message. The message falls back to data.message, then "unknown".
func (s *AnalyticsStore) GroupErrorCountsByDayAndMessage(ctx context.Context, env models.Environment, apiKey string, start, end time.Time) (counts []models.ErrorCountRow, err error) {
	defer s.observe("error_counts_by_day", env, time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT
			toStartOfDay(date, 'UTC') AS day,
			coalesce(
				nullIf(trimBoth(JSONExtractString(properties, 'message')), ''),
				nullIf(trimBoth(JSONExtractString(properties, 'data', 'message')), ''),
				'unknown'
			) AS message,
			count() AS occurrences
		FROM %s
		WHERE api_key = ? AND type = 'error' AND date >= ? AND date < ?
		GROUP BY day, message
		ORDER BY day ASC, occurrences DESC
	`, tableFor(env))

	rows, err := s.DB.QueryContext(ctx, query, apiKey, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query error counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row models.ErrorCountRow
		if err := rows.Scan(&row.Day, &row.Message, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan error count row: %w", err)
		}
		counts = append(counts, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during error counts query: %w", err)
	}

	return counts, nil
}

// RefreshIdentifiedUsers asks ClickHouse to recompute the identified users
// projection of both partitions. Reads never depend on it completing.
func (s *AnalyticsStore) RefreshIdentifiedUsers(ctx context.Context, view string) error {
	for _, env := range []models.Environment{models.Production, models.Test} {
		start := time.Now()
		_, err := s.DB.ExecContext(ctx, fmt.Sprintf("SYSTEM REFRESH VIEW %s", viewFor(env, view)))
		s.metrics.ObserveQuery("refresh_identified_users", env.String(), start, err)
		if err != nil {
			return fmt.Errorf("failed to refresh %s identified users view: %w", env, err)
		}
	}
	return nil
}

func (s *AnalyticsStore) observe(query string, env models.Environment, start time.Time, err *error) {
	s.metrics.ObserveQuery(query, env.String(), start, *err)
}

func ptrFromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}
