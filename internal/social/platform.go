package social

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Post is one item read from a platform feed.
type Post struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
	ParentID  string `json:"parent_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// FeedKind selects which platform feed to read.
type FeedKind string

const (
	FeedNew       FeedKind = "new"
	FeedHot       FeedKind = "hot"
	FeedFollowing FeedKind = "following"
)

// Platform is the write/read surface the scheduler drives. Implementations
// wrap each platform's HTTP API; the scheduler stays platform-agnostic.
type Platform interface {
	Name() string
	Post(ctx context.Context, title, body string) (string, error)
	Reply(ctx context.Context, parentID, body string) (string, error)
	Like(ctx context.Context, id string) error
	Follow(ctx context.Context, name string) error
	SendDM(ctx context.Context, name, body string) error
	Feed(ctx context.Context, kind FeedKind, limit int) ([]Post, error)
	Mentions(ctx context.Context) ([]Post, error)
	DMs(ctx context.Context) ([]Post, error)
	Search(ctx context.Context, query string, limit int) ([]Post, error)
	MarkNotificationsRead(ctx context.Context) error
	Health(ctx context.Context) error
}

var (
	suspendedPattern = regexp.MustCompile(`suspended until (\d+)`)
	rateLimitPattern = regexp.MustCompile(`(?i)rate limit`)
	duplicatePattern = regexp.MustCompile(`(?i)duplicate`)
)

// SuspendedUntil extracts the suspension timestamp from a write error, if
// the platform reported one.
func SuspendedUntil(err error) (int64, bool) {
	if err == nil {
		return 0, false
	}
	m := suspendedPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	ts, perr := strconv.ParseInt(m[1], 10, 64)
	if perr != nil {
		return 0, false
	}
	return ts, true
}

// IsRateLimited reports whether the platform pushed back on write volume.
func IsRateLimited(err error) bool {
	return err != nil && rateLimitPattern.MatchString(err.Error())
}

// IsDuplicate reports whether the platform rejected the content as a repeat.
func IsDuplicate(err error) bool {
	return err != nil && duplicatePattern.MatchString(err.Error())
}

// SuspensionFor maps a write error to how long the platform should be left
// alone. Explicit "suspended until" wins; rate-limit and duplicate-content
// pushback get a fixed cool-off.
func SuspensionFor(err error, now time.Time) (int64, bool) {
	if ts, ok := SuspendedUntil(err); ok {
		return ts, true
	}
	if IsRateLimited(err) || IsDuplicate(err) {
		return now.Add(time.Hour).Unix(), true
	}
	return 0, false
}

// ExtractWalletAddress pulls the first 0x-address out of a reply or DM body.
func ExtractWalletAddress(body string) (string, bool) {
	m := walletPattern.FindString(body)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}

var walletPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
