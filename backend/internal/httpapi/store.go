package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/adapter"
	"prompt-studio/backend/internal/graph"
	"prompt-studio/backend/internal/prompt"
	apperrors "prompt-studio/backend/pkg/errors"
)

// PromptRepository is the persistence the prompt store routes serve
type PromptRepository interface {
	Get(ctx context.Context, name, version string) (*prompt.Prompt, error)
	Children(ctx context.Context, name, version string) ([]prompt.Prompt, error)
	List(ctx context.Context) ([]prompt.Prompt, error)
	Create(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error)
	Replace(ctx context.Context, name, version string, p prompt.Prompt) (*prompt.Prompt, error)
	Patch(ctx context.Context, name, version string, patch graph.Patch) error
	Delete(ctx context.Context, name, version string) error
}

// Generator runs a prompt against a model
type Generator interface {
	Generate(ctx context.Context, in adapter.Request) (*adapter.Response, error)
}

// StoreHandler serves the prompt store REST contract
type StoreHandler struct {
	repo     PromptRepository
	llm      Generator
	validate *validator.Validate
	logger   *zap.Logger
}

// NewStoreHandler creates the prompt store handler. llm may be nil, in which
// case execute answers 503.
func NewStoreHandler(repo PromptRepository, llm Generator, log *zap.Logger) *StoreHandler {
	return &StoreHandler{
		repo:     repo,
		llm:      llm,
		validate: validator.New(),
		logger:   log,
	}
}

// Register mounts the routes on r
func (h *StoreHandler) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	prompts := r.Group("/prompts")
	{
		prompts.GET("", h.list)
		prompts.POST("", h.create)
		prompts.POST("/execute", h.execute)
		prompts.GET("/:name/:version", h.get)
		prompts.GET("/:name/:version/children", h.children)
		prompts.PUT("/:name/:version", h.replace)
		prompts.PATCH("/:name/:version", h.patch)
		prompts.DELETE("/:name/:version", h.delete)
	}
}

func (h *StoreHandler) list(c *gin.Context) {
	prompts, err := h.repo.List(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, "Failed to list prompts", err)
		return
	}
	c.JSON(http.StatusOK, prompts)
}

func (h *StoreHandler) get(c *gin.Context) {
	p, err := h.repo.Get(c.Request.Context(), c.Param("name"), c.Param("version"))
	if err != nil {
		abortWithError(c, h.logger, "Prompt not found", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *StoreHandler) children(c *gin.Context) {
	children, err := h.repo.Children(c.Request.Context(), c.Param("name"), c.Param("version"))
	if err != nil {
		abortWithError(c, h.logger, "Failed to fetch children", err)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (h *StoreHandler) create(c *gin.Context) {
	var p prompt.Prompt
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validatePrompt(p); err != nil {
		abortWithError(c, h.logger, "Invalid prompt", err)
		return
	}

	created, err := h.repo.Create(c.Request.Context(), p)
	if err != nil {
		abortWithError(c, h.logger, "Failed to create prompt", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *StoreHandler) replace(c *gin.Context) {
	var p prompt.Prompt
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Identity comes from the path.
	p.Name, p.Version = c.Param("name"), c.Param("version")
	if err := h.validatePrompt(p); err != nil {
		abortWithError(c, h.logger, "Invalid prompt", err)
		return
	}

	updated, err := h.repo.Replace(c.Request.Context(), p.Name, p.Version, p)
	if err != nil {
		abortWithError(c, h.logger, "Failed to update prompt", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// patchBody distinguishes an absent parentId from an explicit null
type patchBody struct {
	Metadata *struct {
		FlowPosition *prompt.Position `json:"flowPosition"`
	} `json:"metadata"`
	ParentID json.RawMessage `json:"parentId"`
}

func (b patchBody) hasParent() bool {
	return b.ParentID != nil
}

func (b patchBody) parent() (*string, error) {
	if bytes.Equal(bytes.TrimSpace(b.ParentID), []byte("null")) {
		return nil, nil
	}
	var id string
	if err := json.Unmarshal(b.ParentID, &id); err != nil {
		return nil, apperrors.NewValidationFailed("parentId", "must be a string or null")
	}
	return &id, nil
}

func (h *StoreHandler) patch(c *gin.Context) {
	var body patchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	name, version := c.Param("name"), c.Param("version")
	var pos *prompt.Position
	if body.Metadata != nil {
		pos = body.Metadata.FlowPosition
	}
	if pos == nil && !body.hasParent() {
		abortWithError(c, h.logger, "Nothing to update",
			apperrors.NewValidationFailed("body", "expected metadata.flowPosition or parentId"))
		return
	}

	patch := graph.Patch{Position: pos, SetParent: body.hasParent()}
	if patch.SetParent {
		parentID, err := body.parent()
		if err != nil {
			abortWithError(c, h.logger, "Invalid parent", err)
			return
		}
		patch.ParentID = parentID
	}
	if err := h.repo.Patch(ctx, name, version, patch); err != nil {
		abortWithError(c, h.logger, "Failed to update prompt", err)
		return
	}

	updated, err := h.repo.Get(ctx, name, version)
	if err != nil {
		abortWithError(c, h.logger, "Prompt not found", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *StoreHandler) delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("name"), c.Param("version")); err != nil {
		abortWithError(c, h.logger, "Failed to delete prompt", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) execute(c *gin.Context) {
	var req prompt.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.llm == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No model configured"})
		return
	}

	ctx := c.Request.Context()
	p, err := h.repo.Get(ctx, req.Name, req.Version)
	if err != nil {
		abortWithError(c, h.logger, "Prompt not found", err)
		return
	}

	resp, err := h.llm.Generate(ctx, adapter.Request{
		SystemPrompt: p.Content,
		UserMsg:      req.Input,
		Model:        p.Config.Model,
		Temperature:  float32(p.Config.Temperature),
		MaxTokens:    p.Config.MaxTokens,
	})
	if err != nil {
		h.logger.Error("Failed to execute prompt", zap.String("prompt", p.Key()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to execute prompt"})
		return
	}

	c.JSON(http.StatusOK, prompt.ExecuteResult{
		Name:    p.Name,
		Version: p.Version,
		Model:   resp.Model,
		Output:  resp.Content,
	})
}

func (h *StoreHandler) validatePrompt(p prompt.Prompt) error {
	err := h.validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperrors.NewValidationFailed(fieldErrs[0].Field(), fieldErrs[0].Tag())
	}
	return apperrors.NewValidationFailed("prompt", err.Error())
}
