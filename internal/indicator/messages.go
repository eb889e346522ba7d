package indicator

import (
	"errors"
	"os"
	"strings"

	"github.com/rbright/conversa/internal/fsm"
)

var errQueueFull = errors.New("notification dropped")

type locale string

const (
	localePortuguese locale = "pt"
	localeEnglish    locale = "en"
)

type messages struct {
	idle       string
	connecting string
	listening  string
	thinking   string
	speaking   string
	errorText  string
}

func indicatorMessagesFromEnv() messages {
	raw := os.Getenv("LC_MESSAGES")
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("LANG")
	}
	return indicatorMessages(resolveLocale(raw))
}

// resolveLocale maps a POSIX locale to a message table. Portuguese is the default.
func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localePortuguese
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		return messages{
			idle:       "Waiting to start",
			connecting: "Connecting…",
			listening:  "Listening…",
			thinking:   "Thinking…",
			speaking:   "Speaking…",
			errorText:  "Connection error",
		}
	default:
		return messages{
			idle:       "Aguardando Início",
			connecting: "Conectando...",
			listening:  "Ouvindo...",
			thinking:   "Pensando...",
			speaking:   "Falando...",
			errorText:  "Erro na Conexão",
		}
	}
}

func (m messages) text(state fsm.State) string {
	switch state {
	case fsm.StateConnecting:
		return m.connecting
	case fsm.StateListening:
		return m.listening
	case fsm.StateThinking:
		return m.thinking
	case fsm.StateSpeaking:
		return m.speaking
	case fsm.StateError:
		return m.errorText
	default:
		return m.idle
	}
}
