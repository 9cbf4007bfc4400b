package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/examtrust/examtrust-backend/internal/middleware"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/examtrust/examtrust-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubmissionHandler exposes the submission lifecycle endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Start godoc
// POST /submissions/start
func (h *SubmissionHandler) Start(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req model.StartSubmissionRequest
	if msg := validator.Bind(c, &req); msg != "" {
		response.Fail(c, http.StatusBadRequest, msg)
		return
	}

	sub, err := h.submissions.Start(c.Request.Context(), *p, req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, sub)
}

// UpdateAnswers godoc
// PATCH /submissions/:id/answers
func (h *SubmissionHandler) UpdateAnswers(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateAnswersRequest
	if msg := validator.Bind(c, &req); msg != "" {
		response.Fail(c, http.StatusBadRequest, msg)
		return
	}

	sub, err := h.submissions.UpdateAnswers(c.Request.Context(), *p, id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sub)
}

// Submit godoc
// POST /submissions/:id/submit
func (h *SubmissionHandler) Submit(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), *p, id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sub)
}

// GetByID godoc
// GET /submissions/:id
func (h *SubmissionHandler) GetByID(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.GetByID(c.Request.Context(), *p, id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sub)
}

// GetExamSubmissions godoc
// GET /submissions/exam/:examId
func (h *SubmissionHandler) GetExamSubmissions(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	examID, ok := pathID(c, "examId")
	if !ok {
		return
	}

	subs, err := h.submissions.ListForExam(c.Request.Context(), *p, examID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, subs)
}

// GetLeaderboard godoc
// GET /submissions/exam/:examId/leaderboard
func (h *SubmissionHandler) GetLeaderboard(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	examID, ok := pathID(c, "examId")
	if !ok {
		return
	}

	board, err := h.submissions.Leaderboard(c.Request.Context(), *p, examID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, board)
}

// GetMine godoc
// GET /submissions/me?subject=&status=&startDate=&endDate=
// Filters are conjunctive; absent filters impose no constraint.
func (h *SubmissionHandler) GetMine(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	filter := model.SubmissionFilter{
		Subject: c.Query("subject"),
	}

	if status := c.Query("status"); status != "" {
		st := model.SubmissionStatus(status)
		if !st.Valid() {
			response.Fail(c, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = st
	}
	from, ok := queryTime(c, "startDate", false)
	if !ok {
		return
	}
	filter.StartedFrom = from

	to, ok := queryTime(c, "endDate", true)
	if !ok {
		return
	}
	filter.StartedTo = to

	subs, err := h.submissions.ListMine(c.Request.Context(), *p, filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, subs)
}

// UpdateFaceImage godoc
// POST /submissions/:id/face-image  (multipart field "image")
func (h *SubmissionHandler) UpdateFaceImage(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	image, ok := formFileBytes(c, "image")
	if !ok {
		return
	}

	url, err := h.submissions.UpdateFaceImage(c.Request.Context(), *p, id, image)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"image_url": url})
}

// Rescore godoc
// POST /submissions/exam/:examId/rescore  (staff)
func (h *SubmissionHandler) Rescore(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	examID, ok := pathID(c, "examId")
	if !ok {
		return
	}

	queued, err := h.submissions.Rescore(c.Request.Context(), *p, examID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": queued})
}

// pathID parses a UUID path parameter, failing the request on bad input.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// queryTime parses an optional RFC3339 or YYYY-MM-DD query parameter.
// A date-only value used as an upper bound covers the whole named day,
// so endDate=2026-08-28 includes attempts started that afternoon.
func queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, true
	}
	response.Fail(c, http.StatusBadRequest, "invalid "+name+" format")
	return nil, false
}

// formFileBytes reads one uploaded multipart file into memory.
func formFileBytes(c *gin.Context, field string) ([]byte, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "no image file uploaded")
		return nil, false
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "unreadable upload")
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "unreadable upload")
		return nil, false
	}
	return data, true
}
