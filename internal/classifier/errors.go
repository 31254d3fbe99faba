package classifier

import "errors"

var (
	ErrModelUnavailable = errors.New("model not loaded")
	ErrClassification   = errors.New("classification failed")
	ErrShapeMismatch    = errors.New("model output does not match class list")
	ErrInvalidScores    = errors.New("model returned non-finite scores")
)
