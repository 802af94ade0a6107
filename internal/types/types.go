package types

import "fmt"

// Operation defines a query type handled by the batch manager.
type Operation int

const (
	OpMatchPair Operation = iota
	OpMatchIndex
	OpRetrieve
	OpDecode
)

func (op Operation) String() string {
	switch op {
	case OpMatchPair:
		return "match-pair"
	case OpMatchIndex:
		return "match-index"
	case OpRetrieve:
		return "retrieve"
	case OpDecode:
		return "decode"
	}
	return "unknown"
}

// MatchType selects which stages of pairwise matching run.
type MatchType int

const (
	MatchDefault MatchType = iota // local first, global only when the local score is weak
	MatchLocal                    // local descriptors only
	MatchGlobal                   // global signature only
	MatchBoth                     // always run both stages
)

// ParseMatchType maps "default", "local", "global" or "both" to a MatchType.
func ParseMatchType(s string) (MatchType, error) {
	switch s {
	case "default", "":
		return MatchDefault, nil
	case "local":
		return MatchLocal, nil
	case "global":
		return MatchGlobal, nil
	case "both":
		return MatchBoth, nil
	}
	return MatchDefault, fmt.Errorf("unknown match type %q", s)
}

// RetrievalResult is one ranked database hit.
type RetrievalResult struct {
	Index       int     `json:"index"`
	Name        string  `json:"name,omitempty"`
	GlobalScore float64 `json:"globalScore"`
	NumMatched  int     `json:"numMatched"`
	NumInliers  int     `json:"numInliers"`
	Score       float64 `json:"score"` // weighted inlier count, 0 when below threshold
}

// RequestContext carries request data through the pipeline.
type RequestContext struct {
	ReqID     string
	Operation Operation
	Params    interface{}          // Wraps specific request struct
	RespChan  chan ResponseContext // Channel to send response back
}

// ResponseContext carries the result.
type ResponseContext struct {
	ReqID   string
	Success bool
	Data    interface{} // Resulting match, ranked list or decoded descriptor
	Error   error
}
