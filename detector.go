package session

// RepSummary describes one completed repetition as produced by the
// repetition detector. Features carries the numeric feature map consumed by
// the classification service.
type RepSummary struct {
	RepNumber       int                `json:"repNumber"`
	SetNumber       int                `json:"setNumber"`
	PeakIndex       int                `json:"peakIndex"`
	ValleyIndex     int                `json:"valleyIndex"`
	DurationSeconds float64            `json:"durationSeconds,omitempty"`
	Features        map[string]float64 `json:"features,omitempty"`
}

// RepDetector is the repetition-detection collaborator. The detection
// algorithm itself is external; the session layer only consumes discrete
// repetition-completed events and uses Truncate during rollback to discard
// samples buffered for an incomplete repetition.
type RepDetector interface {
	// CompleteRep finalizes the repetition bounded by the given peak and
	// valley sample indexes and returns its summary.
	CompleteRep(peakIndex, valleyIndex int) (*RepSummary, error)

	// Truncate discards buffered samples beyond the given confirmed
	// repetition count and sample index.
	Truncate(toRepCount, toSampleIndex int) error
}
