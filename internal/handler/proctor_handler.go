package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/examtrust/examtrust-backend/internal/middleware"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/examtrust/examtrust-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProctorHandler exposes proctoring log ingestion and retrieval.
type ProctorHandler struct {
	proctor *service.ProctorService
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(proctor *service.ProctorService) *ProctorHandler {
	return &ProctorHandler{proctor: proctor}
}

// LogEvent godoc
// POST /proctor/log
//
// Accepts either a JSON body or a multipart form with an optional
// "evidence" file. Evidence upload failures do not reject the event.
func (h *ProctorHandler) LogEvent(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var (
		req      model.LogEventRequest
		evidence []byte
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		parsed, data, ok := h.parseMultipart(c)
		if !ok {
			return
		}
		req, evidence = parsed, data
	} else {
		if msg := validator.Bind(c, &req); msg != "" {
			response.Fail(c, http.StatusBadRequest, msg)
			return
		}
	}

	origin := service.RequestOrigin{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}

	entry, err := h.proctor.LogEvent(c.Request.Context(), *p, req, evidence, origin)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, entry)
}

// GetSubmissionLogs godoc
// GET /proctor/submission/:submissionId?limit=
func (h *ProctorHandler) GetSubmissionLogs(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	submissionID, ok := pathID(c, "submissionId")
	if !ok {
		return
	}

	logs, err := h.proctor.GetSubmissionLogs(c.Request.Context(), *p, submissionID, queryLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, logs)
}

// GetExamLogs godoc
// GET /proctor/exam/:examId?limit=
func (h *ProctorHandler) GetExamLogs(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	examID, ok := pathID(c, "examId")
	if !ok {
		return
	}

	logs, err := h.proctor.GetExamLogs(c.Request.Context(), *p, examID, queryLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, logs)
}

// parseMultipart extracts the event fields and optional evidence bytes
// from a multipart form. Meta arrives as a JSON-encoded string field.
func (h *ProctorHandler) parseMultipart(c *gin.Context) (model.LogEventRequest, []byte, bool) {
	var req model.LogEventRequest

	submissionID, err := uuid.Parse(c.PostForm("submission_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid submission_id format")
		return req, nil, false
	}
	req.SubmissionID = submissionID

	req.Event = c.PostForm("event")
	if req.Event == "" || len(req.Event) > 64 {
		response.Fail(c, http.StatusBadRequest, "event is required and must be at most 64 characters")
		return req, nil, false
	}
	req.Severity = model.Severity(c.PostForm("severity"))

	if rawMeta := c.PostForm("meta"); rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &req.Meta); err != nil {
			response.Fail(c, http.StatusBadRequest, "meta must be a JSON object")
			return req, nil, false
		}
	}

	var evidence []byte
	if _, err := c.FormFile("evidence"); err == nil {
		data, ok := formFileBytes(c, "evidence")
		if !ok {
			return req, nil, false
		}
		evidence = data
	}

	return req, evidence, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
