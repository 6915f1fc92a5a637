package llm

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog/log"
)

// SplitSystem extracts the single system instruction and returns the turns
// without any system-role entries. An explicit instruction wins over the
// first system-role message.
func SplitSystem(messages []Message, explicit string) (string, []Message) {
	system := explicit
	turns := make([]Message, 0, len(messages))

	for _, m := range messages {
		if m.Role == RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		turns = append(turns, m)
	}

	return system, turns
}

// Part is an attachment whose payload has been loaded
type Part struct {
	MimeType string
	Name     string
	Data     []byte
}

// LoadParts loads attachment payloads in order. Attachments that fail to
// load are skipped with a warning so the text still goes through.
func LoadParts(ctx context.Context, provider string, attachments []Attachment) []Part {
	parts := make([]Part, 0, len(attachments))
	for _, a := range attachments {
		if a.Load == nil {
			continue
		}
		data, err := a.Load(ctx)
		if err != nil {
			log.Warn().Err(err).
				Str("provider", provider).
				Str("attachment", a.Name).
				Msg("Skipping attachment that failed to load")
			continue
		}
		parts = append(parts, Part{MimeType: a.MimeType, Name: a.Name, Data: data})
	}
	return parts
}

// IsImage reports whether the MIME type is an image
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// IsText reports whether the MIME type can be inlined as plain text
func IsText(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") || mimeType == "application/json"
}

// DataURL encodes a payload as a base64 data URL
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// InlineText renders a text attachment as a labelled block
func InlineText(p Part) string {
	return "[" + p.Name + "]\n" + string(p.Data)
}
