package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poolwarden/internal/model"
)

func TestHashContent_NormalizesBeforeHashing(t *testing.T) {
	a := HashContent("New Pool:  gas above 50 gwei")
	b := HashContent("new pool: gas above 50 gwei")
	c := HashContent("new pool: gas above 50 gwei\n")
	require.Equal(t, a, b)
	require.Equal(t, a, c)
	require.NotEqual(t, a, HashContent("new pool: gas above 80 gwei"))
}

func TestRememberContent_Dedup(t *testing.T) {
	st := &model.AgentState{}
	require.False(t, SeenContent(st, "coverage pool live"))
	RememberContent(st, "coverage pool live")
	require.True(t, SeenContent(st, "coverage pool live"))
	require.True(t, SeenContent(st, "Coverage   Pool Live"))
}

func TestRememberContent_EvictsOldestPastCap(t *testing.T) {
	st := &model.AgentState{}
	for i := 0; i < model.ContentLedgerCap+50; i++ {
		RememberContent(st, fmt.Sprintf("message %d", i))
	}
	require.Len(t, st.ContentHashes, model.ContentLedgerCap)
	require.False(t, SeenContent(st, "message 0"))
	require.False(t, SeenContent(st, "message 49"))
	require.True(t, SeenContent(st, "message 50"))
	require.True(t, SeenContent(st, fmt.Sprintf("message %d", model.ContentLedgerCap+49)))
}

func TestCounters_ResetOnUTCDateRollover(t *testing.T) {
	st := &model.AgentState{}
	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)

	CountWrite(st, CounterPosts, day1)
	CountWrite(st, CounterPosts, day1)
	require.Equal(t, 2, CounterValue(st, CounterPosts, day1))
	require.False(t, AllowWrite(st, CounterPosts, 2, day1))

	require.Equal(t, 0, CounterValue(st, CounterPosts, day2))
	require.True(t, AllowWrite(st, CounterPosts, 2, day2))
	require.Len(t, st.Counters, 1, "stale day must be pruned")
}

func TestCounters_KindsAreIndependent(t *testing.T) {
	st := &model.AgentState{}
	now := time.Now()
	CountWrite(st, CounterComments, now)
	CountWrite(st, CounterFollows, now)
	require.Equal(t, 0, CounterValue(st, CounterPosts, now))
	require.Equal(t, 1, CounterValue(st, CounterComments, now))
	require.Equal(t, 1, CounterValue(st, CounterFollows, now))
	require.Equal(t, 0, CounterValue(st, CounterDMs, now))
}

func TestDayKey_IsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2026, 3, 2, 3, 0, 0, 0, loc) // still 2026-03-01 in UTC
	require.Equal(t, "2026-03-01", DayKey(local))
}
