package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"caisse/internal/core"
)

// Bucket is a time-range filter applied before search and sort. The values
// double as the export file prefix.
type Bucket string

const (
	BucketTotal Bucket = "amount_total"
	BucketYear  Bucket = "amount_annee"
	BucketMonth Bucket = "amount_mois"
	BucketWeek  Bucket = "amount_semaine"
	BucketDay   Bucket = "amount_jour"
)

var ErrInvalidBucket = errors.New("invalid bucket")

var bucketAliases = map[string]Bucket{
	"total": BucketTotal,
	"year":  BucketYear,
	"month": BucketMonth,
	"week":  BucketWeek,
	"day":   BucketDay,
}

// Buckets lists the selectors in display order.
func Buckets() []Bucket {
	return []Bucket{BucketTotal, BucketYear, BucketMonth, BucketWeek, BucketDay}
}

// ParseBucket accepts either the button id (amount_mois) or its short
// alias (month). An empty string selects BucketTotal.
func ParseBucket(s string) (Bucket, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BucketTotal, nil
	}
	if b, ok := bucketAliases[s]; ok {
		return b, nil
	}
	for _, b := range Buckets() {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBucket, s)
}

func (b Bucket) Label() string {
	switch b {
	case BucketYear:
		return "Année"
	case BucketMonth:
		return "Mois"
	case BucketWeek:
		return "Semaine"
	case BucketDay:
		return "Jour"
	default:
		return "Total"
	}
}

// FilterBucket keeps the rows that fall in the bucket relative to now.
//
// Month and week compare the month or ISO week number only, so March 2023
// rows match a March 2024 "month" bucket. The input order is preserved.
func FilterBucket(rows []Row, b Bucket, now time.Time) []Row {
	if b == BucketTotal || b == "" {
		out := make([]Row, len(rows))
		copy(out, rows)
		return out
	}
	thisWeek := core.ISOWeek(now)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		d, err := core.ParseDisplayDate(r.Date)
		if err != nil {
			continue
		}
		var keep bool
		switch b {
		case BucketYear:
			keep = d.Year() == now.Year()
		case BucketMonth:
			keep = d.Month() == now.Month()
		case BucketWeek:
			keep = core.ISOWeek(d) == thisWeek
		case BucketDay:
			keep = d.Day() == now.Day() && d.Month() == now.Month() && d.Year() == now.Year()
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}
