package timeseries

import (
	"sort"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// MinDays is the number of distinct measured days a user needs to appear
// in a domain's output.
const MinDays = 5

// bucketOf returns the first and last calendar day of the period holding day.
// Weeks run Monday through Sunday.
func bucketOf(day time.Time, p models.Period) (time.Time, time.Time) {
	switch p {
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6)
	case models.PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	default:
		return day, day
	}
}

// next returns the start of the period after the one starting at start.
func next(start time.Time, p models.Period) time.Time {
	switch p {
	case models.PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case models.PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// dated is a value with a user and calendar day attached.
type dated[T any] struct {
	userID int64
	day    time.Time
	row    T
}

// groupByDay groups rows per user and observed day, users ascending then days ascending.
func groupByDay[T any](rows []dated[T], emit func(b models.Bucket, group []T)) {
	byUser := splitUsers(rows)
	for _, uid := range sortedUsers(byUser) {
		days := make(map[time.Time][]T)
		var order []time.Time
		for _, r := range byUser[uid] {
			if _, ok := days[r.day]; !ok {
				order = append(order, r.day)
			}
			days[r.day] = append(days[r.day], r.row)
		}
		sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
		for _, d := range order {
			emit(models.Bucket{UserID: uid, PeriodStart: d, PeriodEnd: d}, days[d])
		}
	}
}

// resample groups rows per user into contiguous weekly or monthly buckets
// spanning the first to the last observed bucket. Empty buckets are emitted
// with an empty group.
func resample[T any](rows []dated[T], p models.Period, emit func(b models.Bucket, group []T)) {
	byUser := splitUsers(rows)
	for _, uid := range sortedUsers(byUser) {
		groups := make(map[time.Time][]T)
		var first, last time.Time
		for i, r := range byUser[uid] {
			start, _ := bucketOf(r.day, p)
			groups[start] = append(groups[start], r.row)
			if i == 0 || start.Before(first) {
				first = start
			}
			if i == 0 || start.After(last) {
				last = start
			}
		}
		for start := first; !start.After(last); start = next(start, p) {
			_, end := bucketOf(start, p)
			emit(models.Bucket{UserID: uid, PeriodStart: start, PeriodEnd: end}, groups[start])
		}
	}
}

func splitUsers[T any](rows []dated[T]) map[int64][]dated[T] {
	out := make(map[int64][]dated[T])
	for _, r := range rows {
		out[r.userID] = append(out[r.userID], r)
	}
	return out
}

func sortedUsers[T any](m map[int64][]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// coverage counts, per user, the distinct days on which measured reports true.
type coverage map[int64]map[time.Time]struct{}

func (c coverage) mark(userID int64, day time.Time) {
	if c[userID] == nil {
		c[userID] = make(map[time.Time]struct{})
	}
	c[userID][day] = struct{}{}
}

func (c coverage) passes(userID int64) bool {
	return len(c[userID]) >= MinDays
}

// gate drops the rows of users with fewer than MinDays measured days.
func gate[T any](rows []dated[T], measured func(T) bool) []dated[T] {
	cov := make(coverage)
	for _, r := range rows {
		if measured(r.row) {
			cov.mark(r.userID, r.day)
		}
	}
	var out []dated[T]
	for _, r := range rows {
		if cov.passes(r.userID) {
			out = append(out, r)
		}
	}
	return out
}
