package clustering

import "errors"

var (
	ErrInvalidK          = errors.New("invalid number of clusters")
	ErrUnknownStrategy   = errors.New("unknown clustering strategy")
	ErrEmptyInput        = errors.New("empty embedding matrix")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrDegenerate        = errors.New("degenerate clustering")
)
