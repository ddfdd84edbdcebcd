package valueobject

// ModelConfig is an immutable model-profile value object: which provider,
// which model, and the sampling parameters a run should use.
type ModelConfig struct {
	provider    string
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	stream      bool
}

// NewModelConfig creates a model profile.
func NewModelConfig(provider, model string, maxTokens int, temperature, topP float64, stream bool) ModelConfig {
	return ModelConfig{
		provider:    provider,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		stream:      stream,
	}
}

// DefaultModelConfig is the baseline profile used when no profile_id is given.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		provider:    "openai",
		model:       "gpt-4o",
		maxTokens:   8192,
		temperature: 0.7,
		topP:        0.95,
		stream:      true,
	}
}

func (mc ModelConfig) Provider() string     { return mc.provider }
func (mc ModelConfig) Model() string        { return mc.model }
func (mc ModelConfig) MaxTokens() int       { return mc.maxTokens }
func (mc ModelConfig) Temperature() float64 { return mc.temperature }
func (mc ModelConfig) TopP() float64        { return mc.topP }
func (mc ModelConfig) Stream() bool         { return mc.stream }

// FullModelName returns "<provider>/<model>", used as the wire model id.
func (mc ModelConfig) FullModelName() string {
	return mc.provider + "/" + mc.model
}

// WithTemperature returns a copy with a different temperature.
func (mc ModelConfig) WithTemperature(temp float64) ModelConfig {
	mc.temperature = temp
	return mc
}

// WithMaxTokens returns a copy with a different max-tokens budget.
func (mc ModelConfig) WithMaxTokens(tokens int) ModelConfig {
	mc.maxTokens = tokens
	return mc
}

// Equals is value-object equality.
func (mc ModelConfig) Equals(other ModelConfig) bool {
	return mc == other
}
