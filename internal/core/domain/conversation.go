package domain

import "fmt"

type Mode string

const (
	ModeQuery Mode = "query"
	ModeChat  Mode = "chat"
)

type KnowledgePolicy string

const (
	PolicyRetrievalOnly           KnowledgePolicy = "retrieval_only"
	PolicyRetrievalPlusBackground KnowledgePolicy = "retrieval_plus_background"
)

// RefusalAnswer is the fixed phrase emitted under PolicyRetrievalOnly when the
// retrieved content cannot support an answer. It is an answer, not a failure.
const RefusalAnswer = "Sorry, I can't answer based on the provided documents"

// SessionConfig is the explicit per-session configuration passed into the
// conversation engine. Changing any field mid-session resets turn history.
type SessionConfig struct {
	Mode      Mode            `json:"mode"`
	Policy    KnowledgePolicy `json:"policy"`
	Streaming bool            `json:"streaming"`
	TopK      int             `json:"top_k"`
}

func (c SessionConfig) Validate() error {
	switch c.Mode {
	case ModeQuery, ModeChat:
	default:
		return WrapError(ErrConfiguration, "validate session config", fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.Policy {
	case PolicyRetrievalOnly, PolicyRetrievalPlusBackground:
	default:
		return WrapError(ErrConfiguration, "validate session config", fmt.Errorf("unknown policy %q", c.Policy))
	}
	if c.TopK < 0 {
		return WrapError(ErrConfiguration, "validate session config", fmt.Errorf("top_k must not be negative"))
	}
	return nil
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
