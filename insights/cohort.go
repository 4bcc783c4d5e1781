package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"beacon/api/models"
)

// Bucket names a new joiner cohort.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketLastWeek  Bucket = "lastWeek"
	BucketLastMonth Bucket = "lastMonth"
)

// Buckets lists every cohort, newest first.
var Buckets = []Bucket{BucketToday, BucketLastWeek, BucketLastMonth}

// Window returns the first-seen range of the bucket anchored at now. The
// three windows tile [now-30d, now) with no overlap.
func (b Bucket) Window(now time.Time) (Window, error) {
	switch b {
	case BucketToday:
		return Window{Start: now.Add(-Day), End: now}, nil
	case BucketLastWeek:
		return Window{Start: now.Add(-Week), End: now.Add(-Day)}, nil
	case BucketLastMonth:
		return Window{Start: now.Add(-Month), End: now.Add(-Week)}, nil
	default:
		return Window{}, fmt.Errorf("unknown bucket %q", string(b))
	}
}

// BucketFor returns the cohort whose window holds firstSeen.
func BucketFor(firstSeen, now time.Time) (Bucket, bool) {
	for _, b := range Buckets {
		w, _ := b.Window(now)
		if w.Contains(firstSeen) {
			return b, true
		}
	}
	return "", false
}

// ClassifyPlatform derives the client family from device info. An explicit
// native platform wins over user agent sniffing.
func ClassifyPlatform(info models.DeviceInfo) models.Platform {
	switch info.Platform {
	case "ios":
		return models.PlatformIOS
	case "android":
		return models.PlatformAndroid
	case "web":
		ua := info.UserAgent
		if strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad") {
			return models.PlatformIOS
		}
		if strings.Contains(ua, "Android") {
			return models.PlatformAndroid
		}
	}
	return models.PlatformWeb
}

// buildProfiles joins first-seen entries with their latest activity. The
// result keeps the order of firsts re-sorted by first seen, newest first.
// A first-seen identity without a latest row means the store returned an
// inconsistent answer.
func buildProfiles(firsts []models.IdentityFirstSeen, rows []models.ProfileRow) ([]models.ProfileSummary, error) {
	byID := make(map[string]models.ProfileRow, len(rows))
	for _, r := range rows {
		byID[r.IdentifyID] = r
	}

	profiles := make([]models.ProfileSummary, 0, len(firsts))
	for _, f := range firsts {
		row, ok := byID[f.IdentifyID]
		if !ok {
			return nil, fmt.Errorf("no latest event for identity %s", f.IdentifyID)
		}
		profiles = append(profiles, profileFrom(f, row))
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		if !profiles[i].FirstSeen.Equal(profiles[j].FirstSeen) {
			return profiles[i].FirstSeen.After(profiles[j].FirstSeen)
		}
		return profiles[i].IdentifyID < profiles[j].IdentifyID
	})
	return profiles, nil
}

func profileFrom(first models.IdentityFirstSeen, row models.ProfileRow) models.ProfileSummary {
	p := row.IdentifyProperties
	return models.ProfileSummary{
		IdentifyID: first.IdentifyID,
		UserID:     row.UserID,
		Identified: row.UserID != nil && *row.UserID != "",
		Name:       p.OptionalString("data", "name"),
		Email:      p.OptionalString("data", "email"),
		Avatar:     p.OptionalString("data", "avatar"),
		Platform:   ClassifyPlatform(row.Info),
		FirstSeen:  first.FirstSeen,
		LastSeen:   row.LastSeen,
	}
}
