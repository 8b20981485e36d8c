package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"poolwarden/internal/lifecycle"
	"poolwarden/internal/model"
	"poolwarden/internal/recorder"
	"poolwarden/internal/social"
	"poolwarden/internal/state"
)

// Budgets carries the per-cycle and per-day write limits.
type Budgets struct {
	PostCooldown    time.Duration
	DailyPostCap    int
	DailyCommentCap int
	DailyFollowCap  int
	DailyDMCap      int
	LikesPerCycle   int
	RepliesPerCycle int
}

// Heartbeat is the single-threaded cooperative loop driving the whole agent.
// One cycle executes the ordered steps below; no step starts before the
// previous one finishes, which linearizes all state mutations.
type Heartbeat struct {
	Cron      *cron.Cron
	Store     *state.Store
	Manager   *lifecycle.Manager
	Platforms []social.Platform
	Recorder  recorder.Recorder
	Budgets   Budgets

	VaultAddress  string
	RouterAddress string

	// SellingEnabled gates pool announcements and outreach DMs. Reads,
	// lifecycle, and resolution keep running when it is off.
	SellingEnabled bool

	Now     func() time.Time
	cycles  int
	running atomic.Bool
}

// NewHeartbeat wires the loop. Platforms may be empty (oracle-only mode).
func NewHeartbeat(store *state.Store, mgr *lifecycle.Manager, platforms []social.Platform, rec recorder.Recorder, b Budgets) *Heartbeat {
	return &Heartbeat{
		Cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		Store:     store,
		Manager:   mgr,
		Platforms: platforms,
		Recorder:  rec,
		Budgets:   b,
		Now:       time.Now,
	}
}

// Start registers the cycle at the given interval and starts the cron. The
// first cycle runs immediately.
func (h *Heartbeat) Start(ctx context.Context, interval time.Duration) error {
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := h.Cron.AddFunc(spec, func() { h.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("register heartbeat: %w", err)
	}
	h.Cron.Start()
	log.Printf("[INFO] heartbeat started, interval %s", interval)
	go h.RunCycle(ctx)
	return nil
}

// Stop halts the timer and waits for an in-flight cycle, force-returning
// after 10 s if the cycle hangs.
func (h *Heartbeat) Stop() {
	done := h.Cron.Stop().Done()
	select {
	case <-done:
		log.Println("[INFO] heartbeat stopped")
	case <-time.After(10 * time.Second):
		log.Println("[WARN] heartbeat stop timed out, forcing exit")
	}
}

// RunCycle executes one full heartbeat: the ordered platform steps, the pool
// lifecycle pass, and the state persist. At most one cycle runs at a time;
// a trigger arriving mid-cycle is skipped, which covers the immediate first
// run racing the first cron tick.
func (h *Heartbeat) RunCycle(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		log.Println("[WARN] heartbeat cycle still running, skipping")
		return
	}
	defer h.running.Store(false)

	started := h.now()
	h.cycles++
	log.Printf("[INFO] heartbeat cycle %d starting", h.cycles)

	st := h.Store.State() // step 1: state is the single durable document

	errs := 0
	feed := h.stepRead(ctx, st)                    // steps 2-3
	h.stepLikes(ctx, st, feed)                     // step 4
	h.stepOwnThreads(ctx, st)                      // step 5
	replied := h.stepFeedEngagement(ctx, st, feed) // step 6
	h.stepSearchEngagement(ctx, st)                // step 7
	h.stepCommunityEngagement(ctx, st, feed)       // step 8
	h.stepPosts(ctx, st)                           // step 9
	h.stepFollows(ctx, st, replied)                // step 10
	h.stepWalletRegistrations(ctx, st)             // step 11
	h.stepMarkRead(ctx, st)                        // step 12

	rep := h.Manager.Step(ctx, st) // step 13
	errs += rep.Errors

	st.LastHeartbeat = started.Unix()
	if err := h.Store.Save(); err != nil { // step 14
		errs++
		log.Printf("[ERROR] persist state: %v", err)
	}

	if h.Recorder != nil {
		if err := h.Recorder.RecordHeartbeat(&recorder.HeartbeatRun{
			DurationMS:    time.Since(started).Milliseconds(),
			PoolsTracked:  rep.Tracked,
			PoolsCreated:  rep.Created,
			PoolsResolved: rep.Resolved,
			Errors:        errs,
		}); err != nil {
			log.Printf("[WARN] record heartbeat: %v", err)
		}
	}
	log.Printf("[INFO] heartbeat cycle %d done in %s (tracked=%d created=%d resolved=%d errors=%d)",
		h.cycles, time.Since(started).Round(time.Millisecond), rep.Tracked, rep.Created, rep.Resolved, errs)
}

func (h *Heartbeat) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// writable reports whether writes to the platform are currently allowed,
// honoring the suspension-until timestamp (step 2).
func (h *Heartbeat) writable(st *model.AgentState, p social.Platform) bool {
	if st.Suspended(p.Name(), h.now()) {
		return false
	}
	return true
}

// noteWriteFailure maps a platform error to a suspension window when it
// signals suspension, rate limiting, or duplicate-content pushback.
func (h *Heartbeat) noteWriteFailure(st *model.AgentState, platform string, err error) {
	if until, ok := social.SuspensionFor(err, h.now()); ok {
		if st.SuspendedUntil == nil {
			st.SuspendedUntil = make(map[string]int64)
		}
		st.SuspendedUntil[platform] = until
		log.Printf("[WARN] %s writes suspended until %d: %v", platform, until, err)
	}
}

// submitPost runs the full pre-write discipline: suspension, daily budget,
// cooldown, content-hash dedup. The hash must be absent from the ledger at
// submission time.
func (h *Heartbeat) submitPost(ctx context.Context, st *model.AgentState, p social.Platform, title, body string) bool {
	now := h.now()
	if !h.writable(st, p) {
		return false
	}
	if !state.AllowWrite(st, state.CounterPosts, h.Budgets.DailyPostCap, now) {
		return false
	}
	if last, ok := st.LastPostAt[p.Name()]; ok && now.Sub(time.Unix(last, 0)) < h.Budgets.PostCooldown {
		return false
	}
	if state.SeenContent(st, body) {
		log.Printf("[INFO] duplicate content dropped before submission on %s", p.Name())
		return false
	}

	id, err := p.Post(ctx, title, body)
	if err != nil {
		h.noteWriteFailure(st, p.Name(), err)
		h.recordEngagement(p.Name(), "post", body, "", false, err.Error())
		return false
	}
	state.CountWrite(st, state.CounterPosts, now)
	state.RememberContent(st, body)
	if st.LastPostAt == nil {
		st.LastPostAt = make(map[string]int64)
	}
	st.LastPostAt[p.Name()] = now.Unix()
	st.Stats.PostsSent++
	h.recordEngagement(p.Name(), "post", body, id, true, "")
	log.Printf("[INFO] posted on %s: id=%s", p.Name(), id)
	return true
}

func (h *Heartbeat) submitReply(ctx context.Context, st *model.AgentState, p social.Platform, parentID, body string) bool {
	now := h.now()
	if !h.writable(st, p) {
		return false
	}
	if !state.AllowWrite(st, state.CounterComments, h.Budgets.DailyCommentCap, now) {
		return false
	}
	if state.SeenContent(st, body) {
		return false
	}

	id, err := p.Reply(ctx, parentID, body)
	if err != nil {
		h.noteWriteFailure(st, p.Name(), err)
		h.recordEngagement(p.Name(), "comment", body, parentID, false, err.Error())
		return false
	}
	state.CountWrite(st, state.CounterComments, now)
	state.RememberContent(st, body)
	st.Stats.RepliesSent++
	h.recordEngagement(p.Name(), "comment", body, id, true, "")
	return true
}

// submitDM sends a direct message under the daily DM budget. DMs skip the
// post cooldown and the content ledger: acknowledgments repeat per recipient.
func (h *Heartbeat) submitDM(ctx context.Context, st *model.AgentState, p social.Platform, to, body string) bool {
	now := h.now()
	if !h.writable(st, p) {
		return false
	}
	if !state.AllowWrite(st, state.CounterDMs, h.Budgets.DailyDMCap, now) {
		return false
	}
	if err := p.SendDM(ctx, to, body); err != nil {
		h.noteWriteFailure(st, p.Name(), err)
		h.recordEngagement(p.Name(), "dm", body, to, false, err.Error())
		return false
	}
	state.CountWrite(st, state.CounterDMs, now)
	h.recordEngagement(p.Name(), "dm", body, to, true, "")
	return true
}

// stepRead gathers intelligence: feeds across all platforms. Reads are cheap
// and always allowed, suspension or not.
func (h *Heartbeat) stepRead(ctx context.Context, st *model.AgentState) map[string][]social.Post {
	feed := make(map[string][]social.Post, len(h.Platforms))
	for _, p := range h.Platforms {
		posts, err := p.Feed(ctx, social.FeedNew, 25)
		if err != nil {
			log.Printf("[WARN] read %s feed: %v", p.Name(), err)
			continue
		}
		feed[p.Name()] = posts
	}
	return feed
}

var strongKeywords = []string{"insurance", "coverage", "parametric", "hedge", "collateral", "premium"}
var weakKeywords = []string{"gas", "outage", "uptime", "depeg", "bridge", "oracle", "risk"}

func matchesAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// stepLikes upvotes relevant posts, bounded per cycle only.
func (h *Heartbeat) stepLikes(ctx context.Context, st *model.AgentState, feed map[string][]social.Post) {
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		liked := 0
		for _, post := range feed[p.Name()] {
			if liked >= h.Budgets.LikesPerCycle {
				break
			}
			if !matchesAny(post.Title+" "+post.Body, weakKeywords) {
				continue
			}
			if err := p.Like(ctx, post.ID); err != nil {
				h.noteWriteFailure(st, p.Name(), err)
				break
			}
			liked++
		}
	}
}

// stepOwnThreads tends reply chains under our own prior posts via mentions.
func (h *Heartbeat) stepOwnThreads(ctx context.Context, st *model.AgentState) {
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		mentions, err := p.Mentions(ctx)
		if err != nil {
			log.Printf("[WARN] read %s mentions: %v", p.Name(), err)
			continue
		}
		replied := 0
		for _, mn := range mentions {
			if replied >= h.Budgets.RepliesPerCycle {
				break
			}
			// Wallet registrations are handled by their own step.
			if _, isReg := social.ExtractWalletAddress(mn.Body); isReg {
				continue
			}
			if !matchesAny(mn.Body, append(strongKeywords, weakKeywords...)) {
				continue
			}
			body := fmt.Sprintf("Pool terms and evidence sources are fixed at creation; resolution is deterministic. Vault: %s", h.VaultAddress)
			if h.submitReply(ctx, st, p, mn.ID, body) {
				replied++
			}
		}
	}
}

// stepFeedEngagement comments on strongly matching feed posts. Returns the
// authors engaged, feeding follow management.
func (h *Heartbeat) stepFeedEngagement(ctx context.Context, st *model.AgentState, feed map[string][]social.Post) map[string][]string {
	engaged := make(map[string][]string)
	perAuthor := make(map[string]int)
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		replied := 0
		for _, post := range feed[p.Name()] {
			if replied >= h.Budgets.RepliesPerCycle {
				break
			}
			if !matchesAny(post.Title+" "+post.Body, strongKeywords) {
				continue
			}
			if perAuthor[post.Author] >= 1 {
				continue
			}
			body := fmt.Sprintf("Parametric coverage can price this risk: fixed premium, deterministic resolution against %s-style public evidence.", firstKeyword(post.Title+" "+post.Body))
			if h.submitReply(ctx, st, p, post.ID, body) {
				replied++
				perAuthor[post.Author]++
				engaged[p.Name()] = append(engaged[p.Name()], post.Author)
			}
		}
	}
	return engaged
}

var searchQueries = []string{"parametric insurance", "gas spike", "bridge outage", "depeg coverage", "rpc downtime"}

// stepSearchEngagement rotates through query terms, one per cycle.
func (h *Heartbeat) stepSearchEngagement(ctx context.Context, st *model.AgentState) {
	query := searchQueries[h.cycles%len(searchQueries)]
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		posts, err := p.Search(ctx, query, 10)
		if err != nil {
			log.Printf("[WARN] search %s on %s: %v", query, p.Name(), err)
			continue
		}
		for _, post := range posts {
			if !matchesAny(post.Title+" "+post.Body, strongKeywords) {
				continue
			}
			body := "This is exactly the class of risk a parametric pool settles without a claims adjuster. Evidence-source resolution, on-chain collateral."
			if h.submitReply(ctx, st, p, post.ID, body) {
				break // one search engagement per platform per cycle
			}
		}
	}
}

// stepCommunityEngagement works the hot feed for topic communities.
func (h *Heartbeat) stepCommunityEngagement(ctx context.Context, st *model.AgentState, feed map[string][]social.Post) {
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		posts, err := p.Feed(ctx, social.FeedHot, 10)
		if err != nil {
			continue
		}
		for _, post := range posts {
			if !matchesAny(post.Title+" "+post.Body, weakKeywords) {
				continue
			}
			if err := p.Like(ctx, post.ID); err != nil {
				h.noteWriteFailure(st, p.Name(), err)
			}
			break
		}
	}
}

// stepPosts publishes the intro (once per platform) and announcements for
// pools open for collateral. Hard cooldown and daily cap apply.
func (h *Heartbeat) stepPosts(ctx context.Context, st *model.AgentState) {
	for _, p := range h.Platforms {
		flags := st.Flags(p.Name())
		if !flags.IntroPosted {
			title, body := BuildIntro(h.VaultAddress)
			if h.submitPost(ctx, st, p, title, body) {
				flags.IntroPosted = true
			}
			continue
		}
		if !h.SellingEnabled {
			continue
		}
		for _, pool := range st.Pools {
			if pool.Status != model.StatusPending && pool.Status != model.StatusOpen {
				continue
			}
			title, body := BuildPoolPitch(pool, h.VaultAddress, h.RouterAddress)
			if state.SeenContent(st, body) {
				continue // already announced
			}
			if h.submitPost(ctx, st, p, title, body) {
				break // one announcement per platform per cycle
			}
		}
	}
}

// stepFollows follows authors we engaged with, within the daily budget.
func (h *Heartbeat) stepFollows(ctx context.Context, st *model.AgentState, engaged map[string][]string) {
	now := h.now()
	for _, p := range h.Platforms {
		if !h.writable(st, p) {
			continue
		}
		for _, author := range engaged[p.Name()] {
			if !state.AllowWrite(st, state.CounterFollows, h.Budgets.DailyFollowCap, now) {
				return
			}
			if err := p.Follow(ctx, author); err != nil {
				h.noteWriteFailure(st, p.Name(), err)
				break
			}
			state.CountWrite(st, state.CounterFollows, now)
			h.recordEngagement(p.Name(), "follow", "", author, true, "")
		}
	}
}

// stepWalletRegistrations parses 0x-addresses out of mentions and DMs and
// registers them as participants on the most recent open pool. Mention
// registrations are acknowledged in-thread, DM registrations by DM.
func (h *Heartbeat) stepWalletRegistrations(ctx context.Context, st *model.AgentState) {
	target := latestOpenPool(st)
	for _, p := range h.Platforms {
		if mentions, err := p.Mentions(ctx); err == nil {
			for _, mn := range mentions {
				if addr, ok := registerWallet(target, mn); ok {
					h.submitReply(ctx, st, p, mn.ID, BuildRegistrationAck(addr))
				}
			}
		}
		dms, err := p.DMs(ctx)
		if err != nil {
			log.Printf("[WARN] read %s dms: %v", p.Name(), err)
			continue
		}
		for _, dm := range dms {
			if addr, ok := registerWallet(target, dm); ok {
				h.submitDM(ctx, st, p, dm.Author, BuildRegistrationAck(addr))
			}
		}
	}
}

// registerWallet records one 0x-address on the target pool. Returns the
// address and whether it is newly registered.
func registerWallet(target *model.Pool, msg social.Post) (string, bool) {
	addr, ok := social.ExtractWalletAddress(msg.Body)
	if !ok {
		return "", false
	}
	if target == nil {
		log.Printf("[INFO] wallet registration from %s ignored, no open pool", msg.Author)
		return "", false
	}
	before := len(target.Participants)
	target.AddParticipant(addr)
	if len(target.Participants) == before {
		return "", false
	}
	log.Printf("[INFO] registered participant %s on pool ref=%s", addr, target.Ref)
	return addr, true
}

func latestOpenPool(st *model.AgentState) *model.Pool {
	var latest *model.Pool
	for _, p := range st.Pools {
		if p.Status != model.StatusPending && p.Status != model.StatusOpen {
			continue
		}
		if latest == nil || p.CreatedAt > latest.CreatedAt {
			latest = p
		}
	}
	return latest
}

func (h *Heartbeat) stepMarkRead(ctx context.Context, st *model.AgentState) {
	for _, p := range h.Platforms {
		if err := p.MarkNotificationsRead(ctx); err != nil {
			log.Printf("[WARN] mark notifications read on %s: %v", p.Name(), err)
		}
	}
}

func firstKeyword(text string) string {
	lower := strings.ToLower(text)
	for _, w := range weakKeywords {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return "status-page"
}

func (h *Heartbeat) recordEngagement(platform, kind, content, target string, ok bool, note string) {
	if h.Recorder == nil {
		return
	}
	evt := &recorder.EngagementEvent{
		Platform: platform,
		Kind:     kind,
		TargetID: target,
		OK:       ok,
		Note:     note,
	}
	if content != "" {
		evt.ContentHash = state.HashContent(content)
	}
	if err := h.Recorder.RecordEngagement(evt); err != nil {
		log.Printf("[WARN] record engagement: %v", err)
	}
}
