package visual

import (
	"context"
)

// Image classification capability. Returns the probability, in the range [0,1], that the image is synthetic (AI-generated).
//
// Implementations receive JPEG-encoded bytes.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (float64, error)
}
