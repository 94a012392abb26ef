package transport

import (
	"context"
	"fmt"
	"io"
)

// ConsoleSender writes outbound messages to a writer. Used for local
// development without WhatsApp credentials.
type ConsoleSender struct {
	w io.Writer
}

var _ Sender = (*ConsoleSender)(nil)

func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

func (s *ConsoleSender) SendText(_ context.Context, to, body string) error {
	_, err := fmt.Fprintf(s.w, "-> %s\n%s\n\n", to, body)
	return err
}
