// Package doctor runs runtime readiness diagnostics for config, tools, audio, providers, and storage.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/config"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkAPIKeys(cfg.Config)...)
	if cfg.Config.Wake.Enable {
		checks = append(checks, checkVosk(cfg.Config.Wake.URL))
	}
	checks = append(checks, checkStorePath(cfg.Config.Store.Path))

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("using defaults (%q not found)", cfg.Path)}
	}
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if len(cfg.Warnings) > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, len(cfg.Warnings))
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkAPIKeys reports one check per provider actually selected by config.
func checkAPIKeys(cfg config.Config) []Check {
	needed := map[string]bool{
		cfg.Dictation.Provider: true,
		cfg.Notes.Provider:     true,
	}

	keys := []struct {
		provider string
		value    string
		env      string
	}{
		{config.ProviderGemini, cfg.Gemini.APIKey, "GEMINI_API_KEY"},
		{config.ProviderDeepgram, cfg.Deepgram.APIKey, "DEEPGRAM_API_KEY"},
		{config.ProviderOpenAI, cfg.OpenAI.APIKey, "OPENAI_API_KEY"},
	}

	checks := make([]Check, 0, len(needed))
	for _, key := range keys {
		if !needed[key.provider] {
			continue
		}
		name := key.provider + ".api_key"
		if strings.TrimSpace(key.value) == "" {
			checks = append(checks, Check{Name: name, Pass: false, Message: fmt.Sprintf("missing; set %s.api_key or %s", key.provider, key.env)})
			continue
		}
		checks = append(checks, Check{Name: name, Pass: true, Message: "configured"})
	}
	return checks
}

// checkVosk dials the wake recognizer's websocket endpoint.
func checkVosk(url string) Check {
	if strings.TrimSpace(url) == "" {
		return Check{Name: "wake.vosk", Pass: false, Message: "wake.url is empty"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: probeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return Check{Name: "wake.vosk", Pass: false, Message: fmt.Sprintf("dial %s: %v", url, err)}
	}
	_ = conn.Close()
	return Check{Name: "wake.vosk", Pass: true, Message: fmt.Sprintf("reachable at %s", url)}
}

// checkStorePath verifies the action-item store directory can be created and written.
func checkStorePath(path string) Check {
	if strings.TrimSpace(path) == "" {
		resolved, err := config.DefaultStorePath()
		if err != nil {
			return Check{Name: "store.path", Pass: false, Message: err.Error()}
		}
		path = resolved
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return Check{Name: "store.path", Pass: false, Message: fmt.Sprintf("create %s: %v", path, err)}
	}
	probe, err := os.CreateTemp(path, ".doctor-*")
	if err != nil {
		return Check{Name: "store.path", Pass: false, Message: fmt.Sprintf("%s is not writable: %v", path, err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return Check{Name: "store.path", Pass: true, Message: fmt.Sprintf("writable at %s", filepath.Clean(path))}
}
