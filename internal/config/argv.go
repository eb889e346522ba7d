package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCommand splits a shell-like command line into argv. Single and double
// quotes group words, a backslash escapes the next rune, and a leading "#"
// disables the command. A "~/" prefix on the program is expanded.
func ParseCommand(raw string) (CommandConfig, error) {
	argv, err := splitWords(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	if len(argv) > 0 {
		argv[0] = ExpandHome(argv[0])
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Enabled reports whether the command has a program to run.
func (c CommandConfig) Enabled() bool {
	return len(c.Argv) > 0
}

type wordSplitter struct {
	words   []string
	word    strings.Builder
	started bool
	quote   rune
	escaped bool
}

func splitWords(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var s wordSplitter
	for _, r := range input {
		s.feed(r)
	}

	switch {
	case s.escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	case s.quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	s.endWord()
	return s.words, nil
}

func (s *wordSplitter) feed(r rune) {
	if s.escaped {
		s.add(r)
		s.escaped = false
		return
	}
	if s.quote != 0 {
		if r == s.quote {
			s.quote = 0
			return
		}
		s.add(r)
		return
	}

	switch {
	case r == '\\':
		s.escaped = true
		s.started = true
	case r == '\'' || r == '"':
		// "" still yields an (empty) argument
		s.quote = r
		s.started = true
	case unicode.IsSpace(r):
		s.endWord()
	default:
		s.add(r)
	}
}

func (s *wordSplitter) add(r rune) {
	s.word.WriteRune(r)
	s.started = true
}

func (s *wordSplitter) endWord() {
	if !s.started {
		return
	}
	s.words = append(s.words, s.word.String())
	s.word.Reset()
	s.started = false
}
