// Package transport abstracts the messaging channel. The chat flow
// only ever sees inbound messages and a Sender; whether they travel
// over the WhatsApp Cloud API or a terminal is wiring.
package transport

import "context"

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

type (
	// MessageKind distinguishes plain text from media messages.
	MessageKind string

	// InboundMessage is one message received from a user, normalized
	// away from any channel-specific envelope.
	InboundMessage struct {
		// From is the sender's phone number in international format,
		// digits only.
		From string
		Kind MessageKind
		Text string
		// MediaID references downloadable media when Kind is image.
		MediaID string
	}

	// Sender delivers outbound replies to a user.
	Sender interface {
		SendText(ctx context.Context, to, body string) error
	}

	// MediaDownloader fetches media referenced by an inbound message.
	MediaDownloader interface {
		DownloadMedia(ctx context.Context, mediaID string) (data []byte, mimeType string, err error)
	}
)
