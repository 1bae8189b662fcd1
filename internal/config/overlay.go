package config

import (
	"fmt"
	"strings"
)

// overlay mirrors Config with optional fields; only keys present in the file
// replace the base values. The same structs decode JSONC and YAML.
type overlay struct {
	Audio     *audioOverlay     `json:"audio" yaml:"audio"`
	Wake      *wakeOverlay      `json:"wake" yaml:"wake"`
	Dictation *dictationOverlay `json:"dictation" yaml:"dictation"`
	Gemini    *geminiOverlay    `json:"gemini" yaml:"gemini"`
	Deepgram  *deepgramOverlay  `json:"deepgram" yaml:"deepgram"`
	OpenAI    *openaiOverlay    `json:"openai" yaml:"openai"`
	Notes     *notesOverlay     `json:"notes" yaml:"notes"`
	Store     *storeOverlay     `json:"store" yaml:"store"`
	Indicator *indicatorOverlay `json:"indicator" yaml:"indicator"`
	Metrics   *metricsOverlay   `json:"metrics" yaml:"metrics"`
	Log       *logOverlay       `json:"log" yaml:"log"`

	ClipboardCmd *string `json:"clipboard_cmd" yaml:"clipboard_cmd"`
}

type audioOverlay struct {
	Input    *string `json:"input" yaml:"input"`
	Fallback *string `json:"fallback" yaml:"fallback"`
}

type wakeOverlay struct {
	Enable           *bool   `json:"enable" yaml:"enable"`
	URL              *string `json:"url" yaml:"url"`
	Language         *string `json:"language" yaml:"language"`
	SilenceTimeoutMS *int    `json:"silence_timeout_ms" yaml:"silence_timeout_ms"`
	MaxSessionMS     *int    `json:"max_session_ms" yaml:"max_session_ms"`
}

type dictationOverlay struct {
	Provider         *string `json:"provider" yaml:"provider"`
	Model            *string `json:"model" yaml:"model"`
	SystemPrompt     *string `json:"system_prompt" yaml:"system_prompt"`
	ResponseModality *string `json:"response_modality" yaml:"response_modality"`
	ConnectTimeoutMS *int    `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	SettleMS         *int    `json:"settle_ms" yaml:"settle_ms"`
	MicReleaseMS     *int    `json:"mic_release_ms" yaml:"mic_release_ms"`
}

type geminiOverlay struct {
	APIKey     *string `json:"api_key" yaml:"api_key"`
	NotesModel *string `json:"notes_model" yaml:"notes_model"`
}

type deepgramOverlay struct {
	APIKey   *string `json:"api_key" yaml:"api_key"`
	BaseURL  *string `json:"base_url" yaml:"base_url"`
	Model    *string `json:"model" yaml:"model"`
	Language *string `json:"language" yaml:"language"`
}

type openaiOverlay struct {
	APIKey *string `json:"api_key" yaml:"api_key"`
	Model  *string `json:"model" yaml:"model"`
}

type notesOverlay struct {
	Provider *string `json:"provider" yaml:"provider"`
}

type storeOverlay struct {
	Path *string `json:"path" yaml:"path"`
}

type indicatorOverlay struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	SoundStartFile *string `json:"sound_start_file" yaml:"sound_start_file"`
	SoundStopFile  *string `json:"sound_stop_file" yaml:"sound_stop_file"`
	SoundErrorFile *string `json:"sound_error_file" yaml:"sound_error_file"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type metricsOverlay struct {
	Listen *string `json:"listen" yaml:"listen"`
}

type logOverlay struct {
	Level *string `json:"level" yaml:"level"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (o overlay) applyTo(cfg *Config) error {
	if a := o.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if w := o.Wake; w != nil {
		setBool(&cfg.Wake.Enable, w.Enable)
		setString(&cfg.Wake.URL, w.URL)
		setString(&cfg.Wake.Language, w.Language)
		setInt(&cfg.Wake.SilenceTimeoutMS, w.SilenceTimeoutMS)
		setInt(&cfg.Wake.MaxSessionMS, w.MaxSessionMS)
	}

	if d := o.Dictation; d != nil {
		setString(&cfg.Dictation.Provider, d.Provider)
		cfg.Dictation.Provider = strings.ToLower(cfg.Dictation.Provider)
		setString(&cfg.Dictation.Model, d.Model)
		if d.SystemPrompt != nil {
			cfg.Dictation.SystemPrompt = *d.SystemPrompt
		}
		setString(&cfg.Dictation.ResponseModality, d.ResponseModality)
		setInt(&cfg.Dictation.ConnectTimeoutMS, d.ConnectTimeoutMS)
		setInt(&cfg.Dictation.SettleMS, d.SettleMS)
		setInt(&cfg.Dictation.MicReleaseMS, d.MicReleaseMS)
	}

	if g := o.Gemini; g != nil {
		setString(&cfg.Gemini.APIKey, g.APIKey)
		setString(&cfg.Gemini.NotesModel, g.NotesModel)
	}

	if d := o.Deepgram; d != nil {
		setString(&cfg.Deepgram.APIKey, d.APIKey)
		setString(&cfg.Deepgram.BaseURL, d.BaseURL)
		setString(&cfg.Deepgram.Model, d.Model)
		setString(&cfg.Deepgram.Language, d.Language)
	}

	if oa := o.OpenAI; oa != nil {
		setString(&cfg.OpenAI.APIKey, oa.APIKey)
		setString(&cfg.OpenAI.Model, oa.Model)
	}

	if n := o.Notes; n != nil {
		setString(&cfg.Notes.Provider, n.Provider)
		cfg.Notes.Provider = strings.ToLower(cfg.Notes.Provider)
	}

	if s := o.Store; s != nil {
		setString(&cfg.Store.Path, s.Path)
	}

	if i := o.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, i.SoundStopFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if m := o.Metrics; m != nil {
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if l := o.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	}

	if o.ClipboardCmd != nil {
		cmd, err := ParseCommand(*o.ClipboardCmd)
		if err != nil {
			return fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = cmd
	}

	return nil
}
