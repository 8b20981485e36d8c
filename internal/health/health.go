package health

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"poolwarden/internal/model"
	"poolwarden/internal/state"
)

// Server exposes /health: last-heartbeat timestamp, daily counters, pool
// counts, memory usage, and the set of active subsystems.
type Server struct {
	Store      *state.Store
	Subsystems []string
	StartedAt  time.Time
}

func NewServer(store *state.Store, subsystems []string) *Server {
	return &Server{Store: store, Subsystems: subsystems, StartedAt: time.Now()}
}

type report struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	LastHeartbeat int64             `json:"last_heartbeat"`
	Pools         poolCounts        `json:"pools"`
	Counters      model.DayCounters `json:"counters_today"`
	Stats         model.Stats       `json:"stats"`
	Suspended     map[string]int64  `json:"suspended_until,omitempty"`
	Subsystems    []string          `json:"subsystems"`
	Memory        memStats          `json:"memory"`
}

type poolCounts struct {
	Total       int `json:"total"`
	NonTerminal int `json:"non_terminal"`
	Active      int `json:"active"`
	Resolved    int `json:"resolved"`
	Failed      int `json:"failed"`
}

type memStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGC          uint32 `json:"num_gc"`
	GoroutineCount int    `json:"goroutines"`
}

// Handler returns the /health handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var rep report
	rep.Status = "ok"
	rep.UptimeSeconds = int64(time.Since(s.StartedAt).Seconds())
	rep.Subsystems = s.Subsystems

	now := time.Now()
	s.Store.View(func(st *model.AgentState) {
		rep.LastHeartbeat = st.LastHeartbeat
		rep.Stats = st.Stats
		rep.Suspended = st.SuspendedUntil
		if c, ok := st.Counters[state.DayKey(now)]; ok {
			rep.Counters = *c
		}
		for _, p := range st.Pools {
			rep.Pools.Total++
			if !p.Status.Terminal() {
				rep.Pools.NonTerminal++
			}
			switch p.Status {
			case model.StatusActive:
				rep.Pools.Active++
			case model.StatusResolved:
				rep.Pools.Resolved++
			case model.StatusFailed:
				rep.Pools.Failed++
			}
		}
	})

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	rep.Memory = memStats{
		AllocBytes:     ms.Alloc,
		SysBytes:       ms.Sys,
		NumGC:          ms.NumGC,
		GoroutineCount: runtime.NumGoroutine(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("[WARN] encode health response: %v", err)
	}
}

// ListenAndServe runs the health server. Blocks; run in a goroutine.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	log.Printf("[INFO] health endpoint listening on %s", addr)
	return srv.ListenAndServe()
}
