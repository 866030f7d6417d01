package intervene

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// PromptFunc asks the human one question and returns the raw answer line.
// Injectable so tests never touch a real terminal.
type PromptFunc func(message string) (string, error)

// TerminalHandshake blocks the orchestration goroutine on a human answer
// read on a separate goroutine. The answer travels back over a channel, so
// cancellation is still observed while the human thinks.
type TerminalHandshake struct {
	prompt PromptFunc
	logger zerolog.Logger
}

func NewTerminalHandshake(logger zerolog.Logger) *TerminalHandshake {
	reader := bufio.NewReader(os.Stdin)
	return &TerminalHandshake{
		prompt: func(message string) (string, error) {
			fmt.Fprintln(os.Stderr, message)
			fmt.Fprint(os.Stderr, "Continue when ready [y = continue / n = abort]: ")
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return "", err
			}
			return line, nil
		},
		logger: logger.With().Str("component", "handshake").Logger(),
	}
}

// NewHandshakeWithPrompt wires a custom prompt, used by tests and by any
// future non-terminal surface.
func NewHandshakeWithPrompt(prompt PromptFunc, logger zerolog.Logger) *TerminalHandshake {
	return &TerminalHandshake{prompt: prompt, logger: logger}
}

func (h *TerminalHandshake) RequestIntervention(ctx context.Context, message string, typ Type) (bool, error) {
	h.logger.Warn().Str("type", string(typ)).Msg(message)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := h.prompt(fmt.Sprintf("[%s] %s", typ, message))
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return false, fmt.Errorf("read intervention answer: %w", a.err)
		}
		resp := strings.ToLower(strings.TrimSpace(a.line))
		cont := resp == "" || resp == "y" || resp == "yes" || resp == "continue"
		h.logger.Info().Bool("continue", cont).Msg("intervention answered")
		return cont, nil
	}
}
