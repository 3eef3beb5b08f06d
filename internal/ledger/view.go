package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the column the results are ordered by.
type SortKey string

const (
	SortNone     SortKey = ""
	SortID       SortKey = "id"
	SortEmployee SortKey = "employee"
	SortService  SortKey = "service"
	SortDate     SortKey = "date"
	SortTime     SortKey = "time"
	SortAmount   SortKey = "amount"
)

var ErrInvalidSortKey = errors.New("invalid sort key")

func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SortNone, SortID, SortEmployee, SortService, SortDate, SortTime, SortAmount:
		return k, nil
	}
	return SortNone, fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
}

// State is the filter state shown in the toolbar.
type State struct {
	Bucket Bucket  `json:"bucket"`
	Search string  `json:"search"`
	Sort   SortKey `json:"sort"`
	Invert bool    `json:"invert"`
}

// View is the per-session pipeline: rows → bucket → search/sort → summary.
// It is not safe for concurrent use; Session serializes access.
type View struct {
	now      func() time.Time
	collator *collate.Collator

	rows     []Row
	bucketed []Row
	results  []Row
	state    State
	// sorted is false while results still hold the bucketed rows in base order.
	sorted bool
}

// NewView returns an empty view on the total bucket. now supplies "today"
// for the bucket filter.
func NewView(now func() time.Time) *View {
	if now == nil {
		now = time.Now
	}
	return &View{
		now:      now,
		collator: collate.New(language.French),
		state:    State{Bucket: BucketTotal},
	}
}

// Replace installs a freshly loaded row set. The bucket is kept, the
// search, sort and invert settings are reset.
func (v *View) Replace(rows []Row) {
	v.rows = append([]Row(nil), rows...)
	v.SetBucket(v.state.Bucket)
}

// SetBucket filters by time range and resets the rest of the filter state.
// The results become the bucketed rows in base order.
func (v *View) SetBucket(b Bucket) {
	if b == "" {
		b = BucketTotal
	}
	v.state = State{Bucket: b}
	v.bucketed = FilterBucket(v.rows, b, v.now())
	v.results = append([]Row(nil), v.bucketed...)
	v.sorted = false
}

func (v *View) SetSearch(term string) {
	v.state.Search = term
	v.apply()
}

func (v *View) SetSort(k SortKey) {
	v.state.Sort = k
	v.apply()
}

// ToggleInvert flips the invert flag and reverses the current results
// without searching again.
func (v *View) ToggleInvert() {
	v.state.Invert = !v.state.Invert
	reverse(v.results)
}

func (v *View) State() State { return v.state }

// Results returns a copy of the visible rows.
func (v *View) Results() []Row {
	return append([]Row(nil), v.results...)
}

func (v *View) Summary() Summary { return Summarize(v.results) }

// Len is the number of loaded rows before any filtering.
func (v *View) Len() int { return len(v.rows) }

// Find looks up a loaded row by id.
func (v *View) Find(id int64) (Row, bool) {
	for _, r := range v.rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

func (v *View) apply() {
	term := strings.ToLower(v.state.Search)
	out := make([]Row, 0, len(v.bucketed))
	for _, r := range v.bucketed {
		if matches(r, term) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return v.less(out[i], out[j]) })
	if v.state.Invert {
		reverse(out)
	}
	v.results = out
	v.sorted = true
}

func matches(r Row, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Employee.Username), term) ||
		strings.Contains(strings.ToLower(r.Employee.FirstName), term) ||
		strings.Contains(strings.ToLower(r.Employee.LastName), term) ||
		strings.Contains(strings.ToLower(r.Service), term)
}

func (v *View) less(a, b Row) bool {
	switch v.state.Sort {
	case SortTime:
		return v.collator.CompareString(a.Time, b.Time) < 0
	case SortService:
		return v.collator.CompareString(a.Service, b.Service) < 0
	case SortEmployee:
		return v.collator.CompareString(a.Employee.Username, b.Employee.Username) < 0
	case SortAmount:
		return a.Amount.LessThan(b.Amount)
	case SortID:
		return a.ID < b.ID
	default:
		// DD/MM/YYYY compared as text, so this orders by day of month first.
		return v.collator.CompareString(a.Date, b.Date) < 0
	}
}

// Removal remembers where a row sat in the loaded set so it can be put back.
type Removal struct {
	Row Row

	at int
	ok bool
}

// Remove drops the row with the given id from every stage. It reports false
// when the id is not loaded.
func (v *View) Remove(id int64) (Removal, bool) {
	rows, at, row, ok := without(v.rows, id)
	if !ok {
		return Removal{}, false
	}
	v.rows = rows
	v.bucketed, _, _, _ = without(v.bucketed, id)
	v.results, _, _, _ = without(v.results, id)
	return Removal{Row: row, at: at, ok: true}, true
}

// Restore undoes a Remove. The row goes back into the loaded set and the
// bucket, search, sort and invert settings in force now are applied again,
// so a filter changed since the Remove still holds. It is a no-op if the
// row is present again, e.g. after a refresh.
func (v *View) Restore(rm Removal) {
	if !rm.ok {
		return
	}
	if _, found := v.Find(rm.Row.ID); found {
		return
	}
	v.rows = insertAt(v.rows, rm.at, rm.Row)
	v.rebuild()
}

// rebuild recomputes bucketed and results from rows, keeping the state.
func (v *View) rebuild() {
	v.bucketed = FilterBucket(v.rows, v.state.Bucket, v.now())
	if v.sorted {
		v.apply()
		return
	}
	v.results = append([]Row(nil), v.bucketed...)
	if v.state.Invert {
		reverse(v.results)
	}
}

func without(rows []Row, id int64) ([]Row, int, Row, bool) {
	for i, r := range rows {
		if r.ID == id {
			out := make([]Row, 0, len(rows)-1)
			out = append(out, rows[:i]...)
			out = append(out, rows[i+1:]...)
			return out, i, r, true
		}
	}
	return rows, -1, Row{}, false
}

func insertAt(rows []Row, i int, r Row) []Row {
	if i > len(rows) {
		i = len(rows)
	}
	out := make([]Row, 0, len(rows)+1)
	out = append(out, rows[:i]...)
	out = append(out, r)
	return append(out, rows[i:]...)
}
