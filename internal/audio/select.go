package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Selection is the capture source to use. Warning is set when the
// preferred source was skipped.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// SelectDevice resolves the audio.input and audio.fallback preferences
// against the live source list. Empty or "default" means the server default.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}
	list := deviceList(devices)
	input, fallback = selectorTerm(input), selectorTerm(fallback)

	primary, err := list.resolve(input)
	if err != nil {
		if input != "" {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
		return Selection{}, err
	}
	reason := unusableReason(primary)
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	alt, err := list.resolve(fallback)
	if err != nil {
		if fallback != "" {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, reason, err)
	}
	if altReason := unusableReason(alt); altReason != "" {
		if altReason == "unavailable" {
			altReason = "not available"
		}
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", alt.ID, altReason)
	}

	return Selection{
		Device:   alt,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alt.ID),
		Fallback: primary.ID != alt.ID,
	}, nil
}

type deviceList []Device

// resolve finds the first device matching term, or the default source when
// term is empty.
func (l deviceList) resolve(term string) (Device, error) {
	for _, dev := range l {
		if term == "" && dev.Default {
			return dev, nil
		}
		if term != "" && deviceMatches(dev, term) {
			return dev, nil
		}
	}
	if term == "" {
		return Device{}, errors.New("default audio source is unavailable")
	}
	return Device{}, fmt.Errorf("no device matches %q", term)
}

func selectorTerm(raw string) string {
	term := strings.ToLower(strings.TrimSpace(raw))
	if term == "default" {
		return ""
	}
	return term
}

func unusableReason(dev Device) string {
	switch {
	case dev.Muted:
		return "muted"
	case !dev.Available:
		return "unavailable"
	default:
		return ""
	}
}

// deviceMatches reports whether a lowercase term occurs in the device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}
