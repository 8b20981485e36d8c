package state

import (
	"time"

	"poolwarden/internal/model"
)

// CounterKind names one daily rate-limit budget.
type CounterKind string

const (
	CounterPosts    CounterKind = "posts"
	CounterComments CounterKind = "comments"
	CounterFollows  CounterKind = "follows"
	CounterDMs      CounterKind = "dms"
)

// DayKey is the ISO date the counters are keyed on. Counters reset by the
// date rolling over, not by an explicit reset.
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// todayCounters returns (allocating if needed) today's counter block and
// prunes stale days.
func todayCounters(st *model.AgentState, now time.Time) *model.DayCounters {
	key := DayKey(now)
	if st.Counters == nil {
		st.Counters = make(map[string]*model.DayCounters)
	}
	for k := range st.Counters {
		if k != key {
			delete(st.Counters, k)
		}
	}
	c, ok := st.Counters[key]
	if !ok {
		c = &model.DayCounters{}
		st.Counters[key] = c
	}
	return c
}

// CounterValue reads today's count for a kind.
func CounterValue(st *model.AgentState, kind CounterKind, now time.Time) int {
	c := todayCounters(st, now)
	switch kind {
	case CounterPosts:
		return c.Posts
	case CounterComments:
		return c.Comments
	case CounterFollows:
		return c.Follows
	case CounterDMs:
		return c.DMs
	}
	return 0
}

// AllowWrite is the pre-check every platform write runs against its daily
// budget before making the call.
func AllowWrite(st *model.AgentState, kind CounterKind, dailyCap int, now time.Time) bool {
	return CounterValue(st, kind, now) < dailyCap
}

// CountWrite increments the counter at the call site, after a successful
// platform write.
func CountWrite(st *model.AgentState, kind CounterKind, now time.Time) {
	c := todayCounters(st, now)
	switch kind {
	case CounterPosts:
		c.Posts++
	case CounterComments:
		c.Comments++
	case CounterFollows:
		c.Follows++
	case CounterDMs:
		c.DMs++
	}
}
