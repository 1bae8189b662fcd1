package config

import "strings"

// Parse reads configuration content as JSONC or YAML and validates the result.
//
// JSONC is selected when the first non-whitespace character is `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func decode(content string, base Config) (Config, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return base, nil
	}

	var (
		payload overlay
		err     error
	)
	if strings.HasPrefix(trimmed, "{") {
		err = decodeJSONC(content, &payload)
	} else {
		err = decodeYAML(content, &payload)
	}
	if err != nil {
		return Config{}, err
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
