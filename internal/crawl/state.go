package crawl

// State is a step of the crawl.
type State int

const (
	Connecting State = iota
	LocatingSection
	Paging
	Settling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case LocatingSection:
		return "locating-section"
	case Paging:
		return "paging"
	case Settling:
		return "settling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// StopReason records why paging ended.
type StopReason string

const (
	StopStepLimit  StopReason = "step_limit"
	StopNoItems    StopReason = "no_items"
	StopFrontier   StopReason = "frontier"
	StopNoLoadMore StopReason = "no_load_more"
)
