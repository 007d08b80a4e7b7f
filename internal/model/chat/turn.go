package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// GreetingText is shown in the synthetic greeting turn that opens every conversation.
const GreetingText = "**ImplantAI** is ready. Describe the clinical case or attach CBCT/OPG images to start planning."

// Turn is one immutable entry of the conversation log.
type Turn struct {
	ID        string        `json:"id"`
	Speaker   Speaker       `json:"speaker"`
	Text      string        `json:"text"`
	Images    []Image       `json:"images,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Failure   bool          `json:"failure,omitempty"`
	Model     catalog.Model `json:"model,omitempty"`
	Greeting  bool          `json:"greeting,omitempty"`
}

// NewUserTurn builds a user turn with a fresh identifier.
func NewUserTurn(text string, images []Image) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerUser,
		Text:      text,
		Images:    append([]Image(nil), images...),
		CreatedAt: time.Now(),
	}
}

// NewAssistantTurn builds a reply turn produced by the given concrete model.
func NewAssistantTurn(text string, model catalog.Model) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAssistant,
		Text:      text,
		CreatedAt: time.Now(),
		Model:     model,
	}
}

// NewFailureTurn builds the assistant turn that stands in for a failed send.
func NewFailureTurn(text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAssistant,
		Text:      text,
		CreatedAt: time.Now(),
		Failure:   true,
	}
}

// NewGreetingTurn builds the display-only turn placed at the start of a log.
func NewGreetingTurn() Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAssistant,
		Text:      GreetingText,
		CreatedAt: time.Now(),
		Greeting:  true,
	}
}

// HasText reports whether the turn carries non-blank text.
func (t Turn) HasText() bool {
	return strings.TrimSpace(t.Text) != ""
}

// Empty reports whether the turn has neither text nor images.
func (t Turn) Empty() bool {
	return !t.HasText() && len(t.Images) == 0
}
