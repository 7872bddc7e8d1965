// pkg/arraystore/options.go
package arraystore

// Options configures store behavior beyond the chunk geometry
type Options struct {
	// ContentDefinedFill splits reference-free arrays with FastCDC instead
	// of fixed positions, so content shared between unrelated states can
	// still land on identical chunks.
	//
	// Requires a chunk geometry FastCDC supports: a minimum chunk size of
	// at least 64 bytes and a maximum of at most 1 GiB.
	// Default: false
	ContentDefinedFill bool
}

// FastCDC's supported chunk size range
const (
	cdcSizeMin = 64
	cdcSizeMax = 1 << 30
)

// DefaultOptions returns options with sensible defaults
func DefaultOptions() *Options {
	return &Options{}
}

func (o *Options) validate(s *Store) error {
	if o.ContentDefinedFill {
		if s.chunkSizeMin < cdcSizeMin || s.chunkSizeMax > cdcSizeMax ||
			s.chunkSizeMin >= s.chunkSize || s.chunkSize >= s.chunkSizeMax {
			return ErrContentDefinedGeometry
		}
	}
	return nil
}
