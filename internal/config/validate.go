package config

import (
	"fmt"
	"strings"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Dictation.Provider {
	case ProviderGemini, ProviderDeepgram:
	default:
		return nil, fmt.Errorf("dictation.provider must be one of: gemini, deepgram")
	}
	switch cfg.Notes.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return nil, fmt.Errorf("notes.provider must be one of: gemini, openai")
	}

	if cfg.Dictation.ConnectTimeoutMS <= 0 {
		return nil, fmt.Errorf("dictation.connect_timeout_ms must be > 0")
	}
	if cfg.Dictation.SettleMS < 0 {
		return nil, fmt.Errorf("dictation.settle_ms must be >= 0")
	}
	if cfg.Dictation.MicReleaseMS < 0 {
		return nil, fmt.Errorf("dictation.mic_release_ms must be >= 0")
	}
	switch strings.ToUpper(cfg.Dictation.ResponseModality) {
	case "AUDIO", "TEXT":
	default:
		return nil, fmt.Errorf("dictation.response_modality must be one of: AUDIO, TEXT")
	}

	if cfg.Wake.Enable {
		if strings.TrimSpace(cfg.Wake.URL) == "" {
			return nil, fmt.Errorf("wake.url must not be empty when wake.enable=true")
		}
		if cfg.Wake.SilenceTimeoutMS <= 0 {
			return nil, fmt.Errorf("wake.silence_timeout_ms must be > 0")
		}
		if cfg.Wake.MaxSessionMS <= 0 {
			return nil, fmt.Errorf("wake.max_session_ms must be > 0")
		}
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if !logLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if cfg.Dictation.Provider == ProviderGemini || cfg.Notes.Provider == ProviderGemini {
		if cfg.Gemini.APIKey == "" {
			warnings = append(warnings, Warning{Message: "gemini.api_key is empty; set it or GEMINI_API_KEY"})
		}
	}
	if cfg.Dictation.Provider == ProviderDeepgram && cfg.Deepgram.APIKey == "" {
		warnings = append(warnings, Warning{Message: "deepgram.api_key is empty; set it or DEEPGRAM_API_KEY"})
	}
	if cfg.Notes.Provider == ProviderOpenAI && cfg.OpenAI.APIKey == "" {
		warnings = append(warnings, Warning{Message: "openai.api_key is empty; set it or OPENAI_API_KEY"})
	}

	return warnings, nil
}
