package transcript

import "strings"

// Options controls transcript rendering.
type Options struct {
	Labels        map[Speaker]string
	TrailingSpace bool
}

// DefaultLabels are the pt-BR speaker names used in printed transcripts.
var DefaultLabels = map[Speaker]string{
	SpeakerUser:         "Paciente",
	SpeakerAssistant:    "Assistente",
	SpeakerProfessional: "Profissional",
}

// Render prints entries one per line as "Label: text", collapsing whitespace.
// Entries with no text are skipped.
func Render(entries []Entry, opts Options) string {
	if len(entries) == 0 {
		return ""
	}

	labels := opts.Labels
	if labels == nil {
		labels = DefaultLabels
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		text := Normalize(entry.Text)
		if text == "" {
			continue
		}
		label := labels[entry.Speaker]
		if label == "" {
			label = string(entry.Speaker)
		}
		lines = append(lines, label+": "+text)
	}
	if len(lines) == 0 {
		return ""
	}

	out := strings.Join(lines, "\n")
	if opts.TrailingSpace {
		return out + "\n"
	}
	return out
}

// Normalize collapses runs of whitespace into single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
