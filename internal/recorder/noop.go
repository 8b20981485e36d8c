package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordPoolEvent(_ *PoolEvent) error        { return nil }
func (n *NoopRecorder) RecordResolution(_ *ResolutionEvent) error { return nil }
func (n *NoopRecorder) RecordEngagement(_ *EngagementEvent) error { return nil }
func (n *NoopRecorder) RecordHeartbeat(_ *HeartbeatRun) error     { return nil }
func (n *NoopRecorder) Close() error                              { return nil }
