// Package config resolves, parses, validates, and defaults jotter configuration.
package config

// Config is the fully materialized runtime configuration used by jotter.
type Config struct {
	Audio     AudioConfig
	Wake      WakeConfig
	Dictation DictationConfig
	Gemini    GeminiConfig
	Deepgram  DeepgramConfig
	OpenAI    OpenAIConfig
	Notes     NotesConfig
	Store     StoreConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// WakeConfig controls the local wake-phrase recognizer.
type WakeConfig struct {
	Enable           bool
	URL              string
	Language         string
	SilenceTimeoutMS int
	MaxSessionMS     int
}

// DictationConfig controls the remote streaming session and controller timing.
type DictationConfig struct {
	Provider         string
	Model            string
	SystemPrompt     string
	ResponseModality string
	ConnectTimeoutMS int
	SettleMS         int
	MicReleaseMS     int
}

type GeminiConfig struct {
	APIKey     string
	NotesModel string
}

type DeepgramConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

// NotesConfig selects the note parser.
type NotesConfig struct {
	Provider string
}

// StoreConfig locates the action-item database. Empty means the XDG data dir.
type StoreConfig struct {
	Path string
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	DesktopAppName string
	SoundEnable    bool
	SoundStartFile string
	SoundStopFile  string
	SoundErrorFile string
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// MetricsConfig sets the Prometheus listen address. Empty disables the endpoint.
type MetricsConfig struct {
	Listen string
}

type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

const (
	ProviderGemini   = "gemini"
	ProviderDeepgram = "deepgram"
	ProviderOpenAI   = "openai"
)
