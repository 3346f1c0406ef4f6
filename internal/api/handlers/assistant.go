package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/core"
	"surfmaster/internal/rag"
	"surfmaster/internal/types"
)

// ContextRetriever selects the spots that ground an assistant answer.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, question string, preferredSpotID *int64) (*types.RagContext, error)
}

// AssistantContextRequest is the body of POST /v1/assistant/context. A blank
// question is allowed and yields a fallback context.
type AssistantContextRequest struct {
	Question        string `json:"question" validate:"max=2000"`
	PreferredSpotID *int64 `json:"preferred_spot_id,omitempty" validate:"omitempty,gt=0"`
}

// AssistantContextResponse carries the retrieved context together with the
// rendered prompt pieces a caller hands to its language model.
type AssistantContextResponse struct {
	Context      *types.RagContext `json:"context"`
	ContextBlock string            `json:"context_block"`
	UsedFallback bool              `json:"used_fallback"`
	SystemPrompt string            `json:"system_prompt"`
}

// AssistantHandler serves the retrieval endpoint.
type AssistantHandler struct {
	retriever ContextRetriever
	validator *core.Validator
	logger    *slog.Logger
}

// NewAssistantHandler creates an AssistantHandler.
func NewAssistantHandler(retriever ContextRetriever, val *core.Validator, logger *slog.Logger) *AssistantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssistantHandler{retriever: retriever, validator: val, logger: logger}
}

func (h *AssistantHandler) RegisterRoutes(r chi.Router) {
	r.Post("/assistant/context", h.HandleRetrieveContext)
}

// HandleRetrieveContext handles POST /v1/assistant/context.
func (h *AssistantHandler) HandleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	var req AssistantContextRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidQuestion,
			"question must be at most 2000 bytes and preferred_spot_id positive", err))
		return
	}

	rc, err := h.retriever.RetrieveContext(r.Context(), req.Question, req.PreferredSpotID)
	if err != nil {
		logFailure(h.logger, r, "context retrieval failed", err)
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, AssistantContextResponse{
		Context:      rc,
		ContextBlock: rag.ContextBlock(rc),
		UsedFallback: rc.UsedFallback(),
		SystemPrompt: rag.BuildSystemPrompt(rc),
	})
}
