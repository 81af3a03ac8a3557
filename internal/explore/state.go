package explore

type State int

const (
	StateIdle State = iota
	StateChunking
	StateAwaitingFieldExtraction
	StateMerging
	StateAwaitingLimitAndPivots
	StateAwaitingMergeValidation
	StateReady
	StateQueryCreated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChunking:
		return "chunking"
	case StateAwaitingFieldExtraction:
		return "awaiting_field_extraction"
	case StateMerging:
		return "merging"
	case StateAwaitingLimitAndPivots:
		return "awaiting_limit_and_pivots"
	case StateAwaitingMergeValidation:
		return "awaiting_merge_validation"
	case StateReady:
		return "ready"
	case StateQueryCreated:
		return "query_created"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
