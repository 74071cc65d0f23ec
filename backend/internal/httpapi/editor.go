package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/internal/structure"
	"prompt-studio/backend/internal/workflow"
)

// EditorHandler serves structure views to the view layer
type EditorHandler struct {
	sessions *Registry
	logger   *zap.Logger
}

// NewEditorHandler creates the editor handler over sessions
func NewEditorHandler(sessions *Registry, log *zap.Logger) *EditorHandler {
	return &EditorHandler{sessions: sessions, logger: log}
}

// Register mounts the routes on r
func (h *EditorHandler) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/sessions", h.open)

	s := r.Group("/sessions/:id", h.session)
	{
		s.GET("/view", h.view)
		s.GET("/stream", h.stream)
		s.DELETE("", h.close)
		s.POST("/positions", h.position)
		s.POST("/edges", h.connect)
		s.POST("/nodes/:nodeId/actions/:action", h.action)

		d := s.Group("/dialog")
		d.GET("", h.dialog)
		d.GET("/candidates", h.candidates)
		d.POST("/open", h.dialogOpen)
		d.POST("/tab", h.dialogTab)
		d.POST("/draft", h.dialogDraft)
		d.POST("/existing", h.dialogExisting)
		d.POST("/commit", h.dialogCommit)
		d.POST("/cancel", h.dialogCancel)
	}
}

const sessionKey = "session"

// session resolves :id for every nested route
func (h *EditorHandler) session(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, h.logger, "Session not found", err)
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func current(c *gin.Context) *Session {
	return c.MustGet(sessionKey).(*Session)
}

func (h *EditorHandler) open(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Version string `json:"version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), req.Name, req.Version)
	if err != nil {
		abortWithError(c, h.logger, "Failed to load prompt structure", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": s.ID, "view": s.Store.View()})
}

func (h *EditorHandler) view(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Store.View())
}

func (h *EditorHandler) close(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		abortWithError(c, h.logger, "Session not found", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EditorHandler) position(c *gin.Context) {
	var req struct {
		NodeID string   `json:"nodeId" binding:"required"`
		X      *float64 `json:"x" binding:"required"`
		Y      *float64 `json:"y" binding:"required"`
		Final  bool     `json:"final"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pos := prompt.Position{X: *req.X, Y: *req.Y}
	if err := current(c).Store.ApplyPositionChange(req.NodeID, pos, req.Final); err != nil {
		abortWithError(c, h.logger, "Failed to move node", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EditorHandler) connect(c *gin.Context) {
	var req struct {
		Source string `json:"source" binding:"required"`
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge, err := current(c).Store.Connect(req.Source, req.Target)
	if err != nil {
		abortWithError(c, h.logger, "Failed to connect nodes", err)
		return
	}
	c.JSON(http.StatusOK, edge)
}

func (h *EditorHandler) action(c *gin.Context) {
	s := current(c)
	res, err := s.Dispatcher.Dispatch(c.Request.Context(), c.Param("nodeId"), structure.Action(c.Param("action")))
	if err != nil {
		abortWithError(c, h.logger, "Failed to run node action", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "view": s.Store.View()})
}

func (h *EditorHandler) dialog(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Dialog.Snapshot())
}

func (h *EditorHandler) candidates(c *gin.Context) {
	prompts, err := current(c).Dialog.Candidates(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, "Failed to load prompts", err)
		return
	}
	c.JSON(http.StatusOK, prompts)
}

func (h *EditorHandler) dialogOpen(c *gin.Context) {
	var req struct {
		ParentID string `json:"parentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dialogStep(c, func(d *workflow.Dialog) (workflow.Snapshot, error) {
		return d.Open(req.ParentID)
	})
}

func (h *EditorHandler) dialogTab(c *gin.Context) {
	var req struct {
		Tab workflow.Tab `json:"tab" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dialogStep(c, func(d *workflow.Dialog) (workflow.Snapshot, error) {
		return d.SelectTab(req.Tab)
	})
}

func (h *EditorHandler) dialogDraft(c *gin.Context) {
	var req workflow.Draft
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dialogStep(c, func(d *workflow.Dialog) (workflow.Snapshot, error) {
		return d.SetDraft(req.Name, req.Version)
	})
}

func (h *EditorHandler) dialogExisting(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Version string `json:"version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dialogStep(c, func(d *workflow.Dialog) (workflow.Snapshot, error) {
		return d.SelectExisting(req.Name, req.Version)
	})
}

func (h *EditorHandler) dialogCancel(c *gin.Context) {
	h.dialogStep(c, func(d *workflow.Dialog) (workflow.Snapshot, error) {
		return d.Cancel()
	})
}

func (h *EditorHandler) dialogCommit(c *gin.Context) {
	s := current(c)
	node, err := s.Dialog.Commit(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, "Failed to add child", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"node": node, "view": s.Store.View()})
}

func (h *EditorHandler) dialogStep(c *gin.Context, step func(d *workflow.Dialog) (workflow.Snapshot, error)) {
	snap, err := step(current(c).Dialog)
	if err != nil {
		abortWithError(c, h.logger, "Invalid dialog step", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
