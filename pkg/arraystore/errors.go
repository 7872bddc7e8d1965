// pkg/arraystore/errors.go
package arraystore

import "errors"

var (
	// ErrStrideSize is returned when the stride is less than 1
	ErrStrideSize = errors.New("stride must be at least 1")

	// ErrChunkCount is returned when the chunk count is less than 1
	ErrChunkCount = errors.New("chunk count must be at least 1")

	// ErrContentDefinedGeometry is returned when the chunk geometry is
	// outside the range content-defined splitting supports
	ErrContentDefinedGeometry = errors.New("content-defined fill requires a minimum chunk size of 64 bytes and a maximum of at most 1 GiB")
)
