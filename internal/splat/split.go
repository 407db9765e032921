package splat

// Split names a subset of camera views evaluated together. The name is
// also the output directory under the model path.
type Split string

const (
	SplitTrain  Split = "train"
	SplitTest   Split = "test"
	SplitVideo  Split = "video"
	SplitStatic Split = "static"
)

// HasGroundTruth reports whether views of the split carry reference
// images worth saving next to the renders.
func (s Split) HasGroundTruth() bool {
	return s == SplitTrain || s == SplitTest
}
