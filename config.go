package srcsep

const (
	// TFRSTFT names the short-time Fourier transform.
	TFRSTFT = "STFT"
	// TFRERB names the ERB-scale filterbank.
	TFRERB = "ERB"

	// DefaultIterations applies when a document requests 0 iterations.
	DefaultIterations = 50
)

// Config holds the run settings shared by the command line tools.
type Config struct {
	// Iterations is the number of GEM iterations; 0 selects DefaultIterations.
	Iterations int
	// TFR is the time-frequency representation, TFRSTFT or TFRERB.
	TFR string
	// WindowLength is the frame length in samples.
	WindowLength int
	// Bins is the number of ERB bands.
	Bins int
	// Workers bounds the goroutines used per parallel stage; 0 means one per CPU.
	Workers int
}

// IterationCount returns Iterations, or DefaultIterations when it is not positive.
func (c Config) IterationCount() int {
	if c.Iterations <= 0 {
		return DefaultIterations
	}
	return c.Iterations
}
