package fx2

// Phase names reported through Progress.
const (
	PhaseHold      = "hold"
	PhaseWriting   = "writing"
	PhaseVerifying = "verifying"
	PhaseRelease   = "release"
	PhaseComplete  = "complete"
)

// Progress is passed to a ProgressCallback after every chunk.
type Progress struct {
	Phase        string
	Addr         uint16 // address of the chunk just transferred
	BytesDone    int
	BytesTotal   int
	ChunksIssued int
}

// Percentage returns BytesDone as a share of BytesTotal.
func (p Progress) Percentage() float64 {
	if p.BytesTotal == 0 {
		return 100
	}
	return 100 * float64(p.BytesDone) / float64(p.BytesTotal)
}

// ProgressCallback observes an upload. It runs synchronously between
// transfers and should return quickly.
type ProgressCallback func(Progress)

// Config holds the loader settings.
type Config struct {
	// ChunkSize caps each FW_LOAD transfer. Default and maximum is MaxChunk.
	ChunkSize int

	// Coalesce merges touching runs before upload to cut the number of
	// control transfers. It does not change what ends up in memory.
	Coalesce bool

	// Verify reads every run back while the CPU is still held in reset and
	// fails the load on any mismatch.
	Verify bool

	ProgressCallback ProgressCallback
}

func defaultConfig() Config {
	return Config{
		ChunkSize: MaxChunk,
		Coalesce:  true,
	}
}

// Option configures a Loader.
type Option func(*Config)

// WithChunkSize lowers the per-transfer size. Values outside 1..MaxChunk are
// ignored.
func WithChunkSize(n int) Option {
	return func(c *Config) {
		if n > 0 && n <= MaxChunk {
			c.ChunkSize = n
		}
	}
}

// WithCoalesce enables or disables merging of touching runs (default on).
func WithCoalesce(on bool) Option {
	return func(c *Config) { c.Coalesce = on }
}

// WithVerify enables read-back verification before the CPU is released.
func WithVerify(on bool) Option {
	return func(c *Config) { c.Verify = on }
}

// WithProgressCallback installs an upload observer.
//
//	l := fx2.New(dev, fx2.WithProgressCallback(func(p fx2.Progress) {
//		fmt.Printf("%s %.0f%%\n", p.Phase, p.Percentage())
//	}))
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) { c.ProgressCallback = cb }
}
