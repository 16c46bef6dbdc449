package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/importer"
	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
	"github.com/rglservice/mediation-strapi-import-export/internal/tasks"
)

type ImportController struct {
	importer   *importer.Importer
	store      *store.Store
	taskClient *tasks.Client
	logger     *zap.Logger
}

func NewImportController(imp *importer.Importer, s *store.Store, taskClient *tasks.Client, logger *zap.Logger) *ImportController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportController{
		importer:   imp,
		store:      s,
		taskClient: taskClient,
		logger:     logger,
	}
}

type importRequest struct {
	Model           string          `json:"model" binding:"required"`
	Format          string          `json:"format" binding:"required"`
	IdentifierField string          `json:"identifierField"`
	ImportAsDrafts  bool            `json:"importAsDrafts"`
	Data            json.RawMessage `json:"data" binding:"required"`
}

func (ic *ImportController) options(c *gin.Context, req importRequest) importer.Options {
	return importer.Options{
		Model:           req.Model,
		Format:          req.Format,
		IdentifierField: req.IdentifierField,
		ImportAsDrafts:  req.ImportAsDrafts,
		User:            ActingUser(c),
	}
}

// Import runs a synchronous import and returns the failure list.
func (ic *ImportController) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := ic.importer.ImportData(rawPayload(req), ic.options(c, req))
	if err != nil {
		c.JSON(statusForImportError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Parse runs only the parsing phase, for previewing a payload before
// committing to an import.
func (ic *ImportController) Parse(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed, rowErrors, err := ic.importer.ParseInputData(req.Format, rawPayload(req), ic.options(c, req))
	if err != nil {
		c.JSON(statusForImportError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parsed, "rowErrors": rowErrors})
}

// ImportV2 imports a versioned envelope that carries its own per-model
// metadata; the body is the envelope itself.
func (ic *ImportController) ImportV2(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := importer.Options{
		IdentifierField: c.Query("identifierField"),
		ImportAsDrafts:  c.Query("importAsDrafts") == "true",
		User:            ActingUser(c),
	}
	result, err := ic.importer.ImportDataV2(body, opts)
	if err != nil {
		c.JSON(statusForImportError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportAsync enqueues the import for background processing and
// returns the task id.
func (ic *ImportController) ImportAsync(c *gin.Context) {
	if ic.taskClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is disabled"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := tasks.ImportDataTask{
		Payload:         req.Data,
		Model:           req.Model,
		Format:          req.Format,
		IdentifierField: req.IdentifierField,
		ImportAsDrafts:  req.ImportAsDrafts,
	}
	if user := ActingUser(c); user != nil {
		task.UserID = user.ID
	}

	ids, err := ic.taskClient.Add(task).Save()
	if err != nil {
		ic.logger.Error("failed to enqueue import", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue import"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskIds": ids})
}

// ListModels exposes the model descriptors known to the schema
// registry, so clients can build import forms.
func (ic *ImportController) ListModels(c *gin.Context) {
	registry := ic.importer.Registry()

	models := make([]schema.Model, 0)
	for _, id := range registry.ModelIDs() {
		model, err := registry.Model(id)
		if err != nil {
			continue
		}
		models = append(models, model)
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// SessionStatus reports one import session's bookkeeping record.
func (ic *ImportController) SessionStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, err := ic.store.GetImportSession(uint(id))
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// rawPayload unwraps a JSON payload: the pre-decoded format gets the
// decoded value itself, strings stay strings so the text parsers (csv)
// see their original input, and everything else passes as raw JSON
// bytes.
func rawPayload(req importRequest) any {
	if req.Format == parsers.FormatObject {
		var decoded any
		if err := json.Unmarshal(req.Data, &decoded); err == nil {
			return decoded
		}
	}
	var asString string
	if err := json.Unmarshal(req.Data, &asString); err == nil {
		return asString
	}
	return []byte(req.Data)
}

func statusForImportError(err error) int {
	switch {
	case errors.Is(err, parsers.ErrUnsupportedFormat),
		errors.Is(err, parsers.ErrInvalidShape),
		errors.Is(err, schema.ErrUnknownModel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
