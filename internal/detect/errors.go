package detect

import "fmt"

// InvalidSampleError reports a sample the detector rejected. The detector's
// state is unchanged when this error is returned.
type InvalidSampleError struct {
	Index  uint64
	Value  float64
	Reason string
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("invalid sample at index %d: %s", e.Index, e.Reason)
}
