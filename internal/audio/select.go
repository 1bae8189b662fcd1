package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var errNoDefaultSource = errors.New("default audio source is unavailable")

// Selection is the resolved capture source. Warning is set when a fallback
// replaced the configured input.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList picks the input device, or the fallback when the input
// is unavailable or muted. A muted fallback yields ErrPermissionDenied.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}
	idx := deviceIndex(devices)

	primary, err := idx.resolve("audio.input", input)
	if err != nil {
		return Selection{}, err
	}
	reason := unusable(primary)
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	alt, err := idx.resolve("audio.fallback", fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, reason, err)
	}
	switch {
	case !alt.Available:
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alt.ID)
	case alt.Muted:
		return Selection{}, fmt.Errorf("audio fallback device %q is muted: %w", alt.ID, ErrPermissionDenied)
	}

	return Selection{
		Device:   alt,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alt.ID),
		Fallback: alt.ID != primary.ID,
	}, nil
}

type deviceIndex []Device

// resolve maps a preference to a device: empty or "default" means the server
// default, anything else is a case-insensitive substring of id or description.
func (idx deviceIndex) resolve(key, pref string) (Device, error) {
	term := strings.ToLower(strings.TrimSpace(pref))
	if term == "" || term == "default" {
		for _, dev := range idx {
			if dev.Default {
				return dev, nil
			}
		}
		return Device{}, errNoDefaultSource
	}
	for _, dev := range idx {
		if deviceMatches(dev, term) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%s %q did not match any device", key, term)
}

func unusable(dev Device) string {
	switch {
	case dev.Muted:
		return "muted"
	case !dev.Available:
		return "unavailable"
	default:
		return ""
	}
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}
