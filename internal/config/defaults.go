package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Wake: WakeConfig{
			Enable:           true,
			URL:              "ws://127.0.0.1:2700",
			Language:         "en-US",
			SilenceTimeoutMS: 8000,
			MaxSessionMS:     60000,
		},
		Dictation: DictationConfig{
			Provider:         ProviderGemini,
			ResponseModality: "AUDIO",
			ConnectTimeoutMS: 10000,
			SettleMS:         500,
			MicReleaseMS:     150,
		},
		Deepgram: DeepgramConfig{
			Language: "en-US",
		},
		Notes: NotesConfig{Provider: ProviderGemini},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "jotter",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: mustParseCommand(clipboard),
		Log:       LogConfig{Level: "info"},
	}
}
