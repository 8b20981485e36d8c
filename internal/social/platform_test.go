package social

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSuspendedUntil(t *testing.T) {
	ts, ok := SuspendedUntil(errors.New("moltbook API error: status 403, body: account suspended until 1760000000"))
	require.True(t, ok)
	require.Equal(t, int64(1760000000), ts)

	_, ok = SuspendedUntil(errors.New("moltbook API error: status 500, body: internal"))
	require.False(t, ok)

	_, ok = SuspendedUntil(nil)
	require.False(t, ok)
}

func TestIsRateLimited(t *testing.T) {
	require.True(t, IsRateLimited(errors.New("status 429, body: Rate Limit exceeded")))
	require.True(t, IsRateLimited(errors.New("rate limited, slow down")))
	require.False(t, IsRateLimited(errors.New("status 500, body: oops")))
	require.False(t, IsRateLimited(nil))
}

func TestIsDuplicate(t *testing.T) {
	require.True(t, IsDuplicate(errors.New("status 409, body: Duplicate content rejected")))
	require.False(t, IsDuplicate(errors.New("status 400, body: too long")))
}

func TestSuspensionFor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	ts, ok := SuspensionFor(errors.New("suspended until 1700099999"), now)
	require.True(t, ok)
	require.Equal(t, int64(1700099999), ts)

	ts, ok = SuspensionFor(errors.New("429 rate limit"), now)
	require.True(t, ok)
	require.Equal(t, now.Add(time.Hour).Unix(), ts)

	_, ok = SuspensionFor(errors.New("status 500"), now)
	require.False(t, ok)
}

func TestExtractWalletAddress(t *testing.T) {
	addr, ok := ExtractWalletAddress("register me! 0xAbCdEF1234567890abcdef1234567890ABCDEF12 thanks")
	require.True(t, ok)
	require.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", addr)

	_, ok = ExtractWalletAddress("no address here, just 0x123 fragments")
	require.False(t, ok)
}

func TestMoltBookClient_PostAndErrorSurface(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/posts":
			w.Write([]byte(`{"id":"p-77"}`))
		case "/api/v1/dm":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`account suspended until 1760000000`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMoltBookClient(srv.URL, "key-abc")
	id, err := c.Post(context.Background(), "New pool", "gas coverage live")
	require.NoError(t, err)
	require.Equal(t, "p-77", id)
	require.Equal(t, "Bearer key-abc", gotAuth)

	err = c.SendDM(context.Background(), "someagent", "hello")
	require.Error(t, err)
	ts, ok := SuspendedUntil(err)
	require.True(t, ok, "suspension timestamp must survive the error chain")
	require.Equal(t, int64(1760000000), ts)
}

func TestMoltBookClient_DMInbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/dm/inbox", r.URL.Path)
		w.Write([]byte(`{"messages":[{"id":"d1","author":"bob","content":"wallet 0x00112233445566778899aabbccddeeff00112233"}]}`))
	}))
	defer srv.Close()

	c := NewMoltBookClient(srv.URL, "key")
	msgs, err := c.DMs(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "bob", msgs[0].Author)
	addr, ok := ExtractWalletAddress(msgs[0].Body)
	require.True(t, ok)
	require.Equal(t, "0x00112233445566778899aabbccddeeff00112233", addr)
}

func TestMoltXClient_FeedConversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/timelines/new", r.URL.Path)
		w.Write([]byte(`[{"id":"s1","account":"alice","text":"gm","created_at":100}]`))
	}))
	defer srv.Close()

	c := NewMoltXClient(srv.URL, "key")
	posts, err := c.Feed(context.Background(), FeedNew, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "alice", posts[0].Author)
	require.Equal(t, "gm", posts[0].Body)
}
