package models

// PipelineStep computes the UI step indicator for a form within a two-stage
// pipeline. The mapping is a fixed pure function:
//
//	hasChild, standalone form side  -> 1 (stage 1, awaiting its own submission)
//	hasParent, not yet approved     -> 2 (stage 2, locked or in progress)
//	hasParent, latest approved      -> 3 (stage 2 completed)
//	neither                         -> 0 (standalone)
func PipelineStep(hasChild, hasParent, latestApproved bool) int {
	switch {
	case hasParent && latestApproved:
		return 3
	case hasParent:
		return 2
	case hasChild:
		return 1
	default:
		return 0
	}
}
