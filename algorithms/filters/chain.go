package filters

// Processor is a stateful per-sample audio stage
type Processor interface {
	Process(input float64) float64
	Reset()
}

var (
	_ Processor = (*Biquad)(nil)
	_ Processor = (*Compressor)(nil)
)

// Chain runs samples through processors in order
type Chain struct {
	stages []Processor
}

// NewChain creates a chain from the given stages; nil stages are skipped
func NewChain(stages ...Processor) *Chain {
	c := &Chain{}
	for _, s := range stages {
		if s != nil {
			c.stages = append(c.stages, s)
		}
	}
	return c
}

// Process runs one sample through every stage
func (c *Chain) Process(input float64) float64 {
	for _, s := range c.stages {
		input = s.Process(input)
	}
	return input
}

// ProcessBuffer runs buf through the chain in place
func (c *Chain) ProcessBuffer(buf []float64) {
	for i, sample := range buf {
		buf[i] = c.Process(sample)
	}
}

// Reset clears the state of every stage
func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

// Len returns the number of stages
func (c *Chain) Len() int {
	return len(c.stages)
}
