package announce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Role selects the confirmation sentence.
type Role string

const (
	RolePatient      Role = "patient"
	RoleProfessional Role = "professional"
)

const (
	addressNotFound = "Não foi possível encontrar um endereço correspondente."
	addressFailed   = "Ocorreu um erro ao buscar o endereço."
)

// Synthesizer produces playback samples for a sentence.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]float32, error)
}

// Player schedules samples on the running conversation output.
type Player interface {
	Play(samples []float32) error
}

// Result describes one announcement attempt.
type Result struct {
	Address  string `json:"address"`
	Sentence string `json:"sentence"`
	Spoken   bool   `json:"spoken"`
}

// Announcer ties geocoding, speech synthesis and playback together.
type Announcer struct {
	Geocoder *Geocoder
	Speech   Synthesizer
	Logger   *slog.Logger
}

// Announce resolves lat/lon and speaks the confirmation sentence for role.
//
// Lookup failures fall back to a spoken apology. Synthesis and playback
// failures are returned alongside the partial result; the conversation is
// never affected.
func (a *Announcer) Announce(ctx context.Context, role Role, lat float64, lon float64, player Player) (Result, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Result{}, err
	}

	if a.Speech == nil {
		return Result{}, errors.New("speech synthesis is not configured")
	}
	if player == nil {
		return Result{}, errors.New("no conversation output to play on")
	}

	address := a.address(ctx, lat, lon, logger)
	result := Result{Address: address, Sentence: Sentence(role, address)}

	samples, err := a.Speech.Synthesize(ctx, result.Sentence)
	if err != nil {
		logger.Warn("address announcement synthesis failed", "error", err)
		return result, fmt.Errorf("synthesize announcement: %w", err)
	}
	if err := player.Play(samples); err != nil {
		logger.Warn("address announcement playback failed", "error", err)
		return result, fmt.Errorf("play announcement: %w", err)
	}

	result.Spoken = true
	logger.Info("address announced", "role", string(role), "samples", len(samples))
	return result, nil
}

func (a *Announcer) address(ctx context.Context, lat float64, lon float64, logger *slog.Logger) string {
	if a.Geocoder == nil {
		return addressFailed
	}
	address, err := a.Geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed", "error", err)
		return addressFailed
	}
	if address == "" {
		return addressNotFound
	}
	return address
}

// Sentence builds the pt-BR confirmation prompt for role.
func Sentence(role Role, address string) string {
	address = strings.TrimSpace(address)
	if role == RoleProfessional {
		return fmt.Sprintf("Perfeito, obrigado! O endereço que identifiquei para seu local de atendimento foi: %s. Está correto?", address)
	}
	return fmt.Sprintf("Ótimo, muito obrigado! Com base na sua localização, encontrei o seguinte endereço: %s. Por favor, me confirme se está tudo certo.", address)
}
