package session

import (
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

// TranslateHistory converts the local log into remote history. The greeting
// turn and turns without any segment are dropped; the remote endpoint rejects
// empty content units.
func TranslateHistory(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		msg, ok := TranslateTurn(turn)
		if !ok {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// TranslateTurn maps one local turn to a remote message.
func TranslateTurn(turn chat.Turn) (*schema.Message, bool) {
	if turn.Greeting {
		return nil, false
	}
	role, ok := roleFor(turn.Speaker)
	if !ok {
		return nil, false
	}
	return BuildMessage(role, turn.Text, turn.Images)
}

// BuildMessage builds one content unit: the text segment when non-blank,
// followed by one inline image segment per image. It reports false when the
// unit would carry no segment at all.
func BuildMessage(role schema.RoleType, text string, images []chat.Image) (*schema.Message, bool) {
	hasText := chat.Turn{Text: text}.HasText()

	if len(images) == 0 {
		if !hasText {
			return nil, false
		}
		return &schema.Message{Role: role, Content: text}, true
	}

	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	if hasText {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: text,
		})
	}
	for _, img := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      img.DataURL(),
				MIMEType: img.MIMEType,
				Detail:   schema.ImageURLDetailAuto,
			},
		})
	}

	return &schema.Message{Role: role, MultiContent: parts}, true
}

// Segments counts the content segments of a message.
func Segments(msg *schema.Message) int {
	if msg == nil {
		return 0
	}
	if len(msg.MultiContent) > 0 {
		return len(msg.MultiContent)
	}
	if msg.Content != "" {
		return 1
	}
	return 0
}

func roleFor(speaker chat.Speaker) (schema.RoleType, bool) {
	switch speaker {
	case chat.SpeakerUser:
		return schema.User, true
	case chat.SpeakerAssistant:
		return schema.Assistant, true
	}
	return "", false
}
