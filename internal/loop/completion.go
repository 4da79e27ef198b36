package loop

import "strings"

// DefaultCompletionMarker is the sentinel an agent prints when every story
// is done.
const DefaultCompletionMarker = "<promise>COMPLETE</promise>"

// Detector decides from one iteration's accumulated output whether the run
// is complete.
type Detector interface {
	Complete(output string) bool
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func(output string) bool

// Complete calls f.
func (f DetectorFunc) Complete(output string) bool { return f(output) }

// MarkerDetector reports completion when the output contains Marker.
// An empty Marker never matches.
type MarkerDetector struct {
	Marker string
}

// Complete implements Detector.
func (d MarkerDetector) Complete(output string) bool {
	return d.Marker != "" && strings.Contains(output, d.Marker)
}
