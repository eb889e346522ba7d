package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = 16000
	cueTimeout    = 4 * time.Second
	cueVolume     = 0.18
	cueToneGap    = 22 * time.Millisecond
	// playback stream latency still queued after the mixer finishes
	cueTail = 60 * time.Millisecond
)

type tone struct {
	hz  float64
	dur time.Duration
}

// Rising for connected, falling for closed, a slow descent for errors.
var cueTones = map[cueKind][]tone{
	cueStart: {{hz: 660, dur: 70 * time.Millisecond}, {hz: 990, dur: 90 * time.Millisecond}},
	cueStop:  {{hz: 880, dur: 70 * time.Millisecond}, {hz: 587, dur: 110 * time.Millisecond}},
	cueError: {{hz: 480, dur: 75 * time.Millisecond}, {hz: 360, dur: 90 * time.Millisecond}, {hz: 240, dur: 120 * time.Millisecond}},
}

var (
	cueCacheOnce sync.Once
	cueCache     map[cueKind][]float32
)

// emitCue plays the configured cue file for kind, falling back to the
// synthesized tone when no file or player is set or the player fails.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if path := cuePath(kind, cfg); path != "" && cfg.CuePlayer.Enabled() {
		err := playCueFile(ctx, cfg.CuePlayer.Argv, path)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playSynthCue(ctx, samples)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	files := map[cueKind]string{
		cueStart: cfg.SoundStartFile,
		cueStop:  cfg.SoundStopFile,
		cueError: cfg.SoundErrorFile,
	}
	return config.ExpandHome(files[kind])
}

func playCueFile(ctx context.Context, player []string, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	if len(player) == 0 {
		return fmt.Errorf("no cue player configured for %q", path)
	}

	args := append(append([]string(nil), player[1:]...), path)
	if err := exec.CommandContext(ctx, player[0], args...).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

// playSynthCue plays samples on a short-lived speaker and waits for them to finish.
func playSynthCue(ctx context.Context, samples []float32) error {
	speaker, err := audio.OpenSpeaker(cueSampleRate)
	if err != nil {
		return err
	}
	defer speaker.Close()

	ended := make(chan struct{})
	var once sync.Once
	if _, err := speaker.Schedule(samples, speaker.Now(), func() { once.Do(func() { close(ended) }) }); err != nil {
		return fmt.Errorf("schedule cue: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ended:
	}

	tail := time.NewTimer(cueTail)
	defer tail.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil
		}
		return ctx.Err()
	case <-tail.C:
		return nil
	}
}

func cueSamples(kind cueKind) []float32 {
	cueCacheOnce.Do(func() {
		cueCache = make(map[cueKind][]float32, len(cueTones))
		for k, tones := range cueTones {
			cueCache[k] = synthesizeCue(tones)
		}
	})
	return cueCache[kind]
}

func synthesizeCue(tones []tone) []float32 {
	gap := samplesForDuration(cueToneGap)
	var pcm []float32
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]float32, gap)...)
		}
		pcm = append(pcm, synthesizeTone(t, cueVolume)...)
	}
	return pcm
}

// synthesizeTone renders a sine with a short linear ramp at both ends so
// the cue does not click.
func synthesizeTone(t tone, volume float64) []float32 {
	n := samplesForDuration(t.dur)
	if n <= 0 || t.hz <= 0 || volume <= 0 {
		return nil
	}

	ramp := max(1, min(n/10, cueSampleRate/200))
	pcm := make([]float32, n)
	for i := range pcm {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-1-i)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = float32(math.Sin(phase) * volume * envelope)
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
