package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
)

// ConversationEngine executes turns for exactly one session. It is not safe
// for concurrent use; the session owner serializes turns.
type ConversationEngine struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
	model    ports.LanguageModel

	cfg     domain.SessionConfig
	history []domain.Turn
}

func NewConversationEngine(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	model ports.LanguageModel,
	cfg domain.SessionConfig,
) (*ConversationEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	return &ConversationEngine{
		embedder: embedder,
		vectors:  vectors,
		model:    model,
		cfg:      cfg,
	}, nil
}

// Configure applies a new session configuration. Any change clears turn
// history: stale history combined with a new mode or policy must never reach
// the model.
func (e *ConversationEngine) Configure(cfg domain.SessionConfig) {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg != e.cfg {
		e.history = nil
	}
	e.cfg = cfg
}

// Reset discards the accumulated turn history.
func (e *ConversationEngine) Reset() {
	e.history = nil
}

// History returns a copy of the accumulated turn history.
func (e *ConversationEngine) History() []domain.Turn {
	out := make([]domain.Turn, len(e.history))
	copy(out, e.history)
	return out
}

// RunTurn executes one turn. In streaming mode fragments are forwarded to
// sink; history is only updated once the model call fully returns (or the
// stream is fully drained), so an abandoned turn never corrupts history.
func (e *ConversationEngine) RunTurn(
	ctx context.Context,
	handle *domain.RetrieverHandle,
	userText string,
	sink ports.TokenSink,
) (*domain.Answer, error) {
	if handle == nil || strings.TrimSpace(handle.UserID) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "run turn", fmt.Errorf("no retriever handle established"))
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, domain.WrapError(domain.ErrValidation, "run turn", fmt.Errorf("user text is empty"))
	}

	units, err := e.retrieve(ctx, handle, userText)
	if err != nil {
		return nil, err
	}

	if len(units) == 0 && e.cfg.Policy == domain.PolicyRetrievalOnly {
		// Insufficient context is not a failure: the fixed refusal phrase is
		// the answer, with no citation preamble.
		if sink != nil {
			if err := sink(domain.RefusalAnswer); err != nil {
				return nil, fmt.Errorf("emit refusal: %w", err)
			}
		}
		e.appendHistory(userText, domain.RefusalAnswer)
		return &domain.Answer{Text: domain.RefusalAnswer}, nil
	}

	preamble, sources := citationLine(units)
	prompt := buildSystemPrompt(e.cfg.Policy, units)

	raw, err := e.invokeModel(ctx, prompt, userText, preamble, sink)
	if err != nil {
		return nil, err
	}

	answer := e.finalizeAnswer(raw, preamble, sources)
	e.appendHistory(userText, answer.Text)
	return answer, nil
}

func (e *ConversationEngine) retrieve(ctx context.Context, handle *domain.RetrieverHandle, userText string) ([]domain.RetrievedUnit, error) {
	queryVector, err := e.embedder.EmbedQuery(ctx, userText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
	}

	topK := handle.TopK
	if e.cfg.TopK > 0 {
		topK = e.cfg.TopK
	}

	units, err := e.vectors.Retrieve(ctx, handle.UserID, queryVector, topK, handle.FileNames)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "retrieve units", err)
	}
	return units, nil
}

func (e *ConversationEngine) invokeModel(ctx context.Context, prompt, userText, preamble string, sink ports.TokenSink) (string, error) {
	history := e.modelHistory()

	if sink != nil && e.cfg.Streaming {
		if preamble != "" {
			if err := sink(preamble + "\n\n"); err != nil {
				return "", fmt.Errorf("emit citation: %w", err)
			}
		}
		raw, err := e.model.CompleteStream(ctx, prompt, history, userText, sink)
		if err != nil {
			return "", domain.WrapError(domain.ErrModel, "stream completion", err)
		}
		return raw, nil
	}

	raw, err := e.model.Complete(ctx, prompt, history, userText)
	if err != nil {
		return "", domain.WrapError(domain.ErrModel, "generate completion", err)
	}
	if sink != nil {
		if err := sink(raw); err != nil {
			return "", fmt.Errorf("emit answer: %w", err)
		}
	}
	return raw, nil
}

// modelHistory returns the history passed to the model: accumulated turns in
// chat mode, nothing in single-shot query mode.
func (e *ConversationEngine) modelHistory() []domain.Turn {
	if e.cfg.Mode != domain.ModeChat {
		return nil
	}
	return e.history
}

func (e *ConversationEngine) finalizeAnswer(raw, preamble string, sources []string) *domain.Answer {
	text := strings.TrimSpace(raw)
	if isRefusal(text) {
		return &domain.Answer{Text: domain.RefusalAnswer}
	}
	if preamble != "" && !strings.HasPrefix(text, "Documents used:") {
		text = preamble + "\n\n" + text
	}
	return &domain.Answer{
		Text:          text,
		Sources:       sources,
		UsedRetrieval: len(sources) > 0,
	}
}

func (e *ConversationEngine) appendHistory(userText, answer string) {
	if e.cfg.Mode != domain.ModeChat {
		return
	}
	e.history = append(e.history,
		domain.Turn{Role: domain.RoleUser, Text: userText},
		domain.Turn{Role: domain.RoleAssistant, Text: answer},
	)
}
