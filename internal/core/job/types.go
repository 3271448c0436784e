package job

// State is a job's lifecycle phase as persisted in the jobs table.
// pending -> running -> done | error, with error also reachable from pending.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Params are the encoding knobs fixed at submission time. Exactly one of CRF
// or BitrateKbps applies; Width and Height only when Resolution is "custom".
type Params struct {
	CRF         int
	BitrateKbps int
	Resolution  string
	Width       int
	Height      int
	HWAccel     bool
}

// Spec is the handoff from submission to the worker. CorrelationID is the
// client-chosen token its notification channel is registered under.
type Spec struct {
	ID            string
	UserID        string
	CorrelationID string
	SourceKey     string
	Filename      string
	Params        Params
}
