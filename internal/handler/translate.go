package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"subtrans/backend/internal/apperr"
	"subtrans/backend/internal/engine"
	"subtrans/backend/internal/session"
	"subtrans/backend/internal/subtitle"
)

// TranslateHandler ties the Session Store's opaque config blob to an
// explicit engine.RunOptions at the HTTP boundary, per spec.md §9's
// re-architecture note: the raw blob never reaches the engine.
type TranslateHandler struct {
	store  *session.Store
	engine *engine.Engine
}

func NewTranslateHandler(store *session.Store, eng *engine.Engine) *TranslateHandler {
	return &TranslateHandler{store: store, engine: eng}
}

func (h *TranslateHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/translate", h.Translate)
}

type translateOptionsRequest struct {
	SingleBatchMode    bool   `json:"singleBatchMode"`
	EnableBatchContext bool   `json:"enableBatchContext"`
	ContextSize        int    `json:"contextSize"`
	SendTimestampsToAI bool   `json:"sendTimestampsToAI"`
	EnableStreaming    bool   `json:"enableStreaming"`
	CustomPrompt       string `json:"customPrompt"`
	TargetLanguage     string `json:"targetLanguage"`
	Model              string `json:"model"`
}

type translateRequest struct {
	SessionToken string                  `json:"sessionToken"`
	Document     string                  `json:"document"`
	Options      translateOptionsRequest `json:"options"`
}

type translateResponse struct {
	Document string `json:"document"`
}

func (h *TranslateHandler) Translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	opts := req.Options
	if req.SessionToken != "" {
		cfg, ok := h.store.Get(req.SessionToken)
		if !ok {
			return writeServiceError(c, apperr.ErrNotFound)
		}
		opts = mergeSessionOptions(opts, cfg)
	}

	if opts.TargetLanguage == "" {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	doc, err := subtitle.Parse([]byte(req.Document))
	if err != nil {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	runOpts := engine.RunOptions{
		TargetLanguage:     opts.TargetLanguage,
		CustomPrompt:       opts.CustomPrompt,
		SingleBatchMode:    opts.SingleBatchMode,
		SendTimestampsToAI: opts.SendTimestampsToAI,
		EnableBatchContext: opts.EnableBatchContext,
		ContextSize:        opts.ContextSize,
		Streaming:          opts.EnableStreaming,
		Model:              opts.Model,
	}

	result, err := h.engine.Translate(c.Request().Context(), doc, runOpts, nil)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, translateResponse{Document: result})
}

// mergeSessionOptions lets request-body options override the stored
// session config field-by-field; a zero-value request option falls back
// to the session's stored value.
func mergeSessionOptions(req translateOptionsRequest, cfg map[string]any) translateOptionsRequest {
	if req.TargetLanguage == "" {
		if v, ok := cfg["targetLanguage"].(string); ok {
			req.TargetLanguage = v
		}
	}
	if req.CustomPrompt == "" {
		if v, ok := cfg["customPrompt"].(string); ok {
			req.CustomPrompt = v
		}
	}
	if req.Model == "" {
		if v, ok := cfg["model"].(string); ok {
			req.Model = v
		}
	}
	if !req.SingleBatchMode {
		if v, ok := cfg["singleBatchMode"].(bool); ok {
			req.SingleBatchMode = v
		}
	}
	if !req.EnableBatchContext {
		if v, ok := cfg["enableBatchContext"].(bool); ok {
			req.EnableBatchContext = v
		}
	}
	if req.ContextSize == 0 {
		if v, ok := cfg["contextSize"].(float64); ok {
			req.ContextSize = int(v)
		}
	}
	if !req.SendTimestampsToAI {
		if v, ok := cfg["sendTimestampsToAI"].(bool); ok {
			req.SendTimestampsToAI = v
		}
	}
	if !req.EnableStreaming {
		if v, ok := cfg["enableStreaming"].(bool); ok {
			req.EnableStreaming = v
		}
	}
	return req
}
