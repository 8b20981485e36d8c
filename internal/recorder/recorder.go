package recorder

// PoolEvent records a lifecycle transition of a pool.
type PoolEvent struct {
	PoolRef    string
	ChainID    *uint64
	EventType  string // "PROPOSED", "CREATED", "OPEN", "ACTIVE", "CANCELLED", "FAILED", "EXPIRED", "RETRY"
	Status     string
	Coverage   uint64
	PremiumBps uint32
	Deadline   int64
	TxHash     string
	Note       string
}

// ResolutionEvent records the outcome of the dual-authorization pipeline for
// one pool, whether or not it reached the chain.
type ResolutionEvent struct {
	PoolRef         string
	ChainID         *uint64
	JudgeVerdict    bool
	JudgeConfidence float64
	AuditorVerdict  bool
	Consensus       bool
	ClaimApproved   bool
	SecurityDefault bool
	Emergency       bool
	TxHash          string
	EvidenceBytes   int
}

// EngagementEvent records an outbound social write.
type EngagementEvent struct {
	Platform    string
	Kind        string // "post", "comment", "follow", "dm", "like"
	ContentHash string
	TargetID    string
	OK          bool
	Note        string
}

// HeartbeatRun records one heartbeat cycle for trend analysis.
type HeartbeatRun struct {
	DurationMS    int64
	PoolsTracked  int
	PoolsCreated  int
	PoolsResolved int
	Errors        int
}

// Recorder persists historical events for offline analysis. It is an
// observation channel, never a source of truth; the state file is.
type Recorder interface {
	RecordPoolEvent(evt *PoolEvent) error
	RecordResolution(evt *ResolutionEvent) error
	RecordEngagement(evt *EngagementEvent) error
	RecordHeartbeat(run *HeartbeatRun) error
	Close() error
}
