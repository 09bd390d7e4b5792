package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/aeodev/aiscrape/internal/orchestrator"
	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

var jobValidate = validator.New()

// errorStatus maps a *utils.CustomError to its HTTP status, defaulting to
// 500 for plain errors (store failures, context cancellation, etc).
func errorStatus(err error) int {
	var ce *utils.CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, requestID string, err error) error {
	return c.JSON(errorStatus(err), models.ErrorResponse{
		Error:     "request_failed",
		Message:   err.Error(),
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

// CreateJobHandler handles POST /api/v1/jobs.
func CreateJobHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := utils.LogWithRequestID(requestID)

		var req models.CreateJobRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_request", Message: "invalid request body",
				RequestID: requestID, Timestamp: time.Now(),
			})
		}
		if err := jobValidate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "validation_failed", Message: err.Error(),
				RequestID: requestID, Timestamp: time.Now(),
			})
		}

		var opts models.ScrapeOptions
		if req.Options != nil {
			opts = *req.Options
		}

		job, err := o.CreateJob(c.Request().Context(), req.URL, req.TaskDescription, opts)
		if err != nil {
			logger.WithError(err).Error("create job failed")
			return writeError(c, requestID, err)
		}
		return c.JSON(http.StatusAccepted, models.JobResponse{Success: true, Job: job})
	}
}

// GetJobHandler handles GET /api/v1/jobs/:id.
func GetJobHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		job, err := o.GetJob(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, requestID, err)
		}
		return c.JSON(http.StatusOK, models.JobResponse{Success: true, Job: job})
	}
}

// ListJobsHandler handles GET /api/v1/jobs.
func ListJobsHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		jobs, err := o.ListJobs(c.Request().Context())
		if err != nil {
			return writeError(c, requestID, err)
		}
		flat := make([]models.Job, len(jobs))
		for i, j := range jobs {
			flat[i] = *j
		}
		return c.JSON(http.StatusOK, models.JobListResponse{Success: true, Jobs: flat, Count: len(flat)})
	}
}

// DeleteJobHandler handles DELETE /api/v1/jobs/:id.
func DeleteJobHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		if err := o.DeleteJob(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, requestID, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// CancelJobHandler handles POST /api/v1/jobs/:id/cancel.
func CancelJobHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		if err := o.CancelJob(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, requestID, err)
		}
		job, err := o.GetJob(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, requestID, err)
		}
		return c.JSON(http.StatusOK, models.JobResponse{Success: true, Job: job})
	}
}

// ScrapeAndAnswerHandler handles POST /api/v1/scrape-and-answer.
func ScrapeAndAnswerHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := utils.LogWithRequestID(requestID)

		var req models.ScrapeAndAnswerRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_request", Message: "invalid request body",
				RequestID: requestID, Timestamp: time.Now(),
			})
		}
		if err := jobValidate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "validation_failed", Message: err.Error(),
				RequestID: requestID, Timestamp: time.Now(),
			})
		}

		var opts models.ScrapeOptions
		if req.Options != nil {
			opts = *req.Options
		}
		opts.ForceRefresh = opts.ForceRefresh || req.ForceRefresh

		job, answer, err := o.ScrapeAndAnswer(c.Request().Context(), req.Input, opts)
		if err != nil {
			logger.WithError(err).Error("scrape_and_answer failed")
			return writeError(c, requestID, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"job":     job,
			"answer":  answer,
		})
	}
}

// ChatWithJobHandler handles POST /api/v1/jobs/:id/chat.
func ChatWithJobHandler(o *orchestrator.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := utils.LogWithRequestID(requestID)

		var req models.ChatWithJobRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_request", Message: "invalid request body",
				RequestID: requestID, Timestamp: time.Now(),
			})
		}
		if err := jobValidate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "validation_failed", Message: err.Error(),
				RequestID: requestID, Timestamp: time.Now(),
			})
		}

		jobID := c.Param("id")
		answer, err := o.ChatWithJob(c.Request().Context(), jobID, req.Message)
		if err != nil {
			logger.WithError(err).Error("chat_with_job failed")
			return writeError(c, requestID, err)
		}

		job, err := o.GetJob(c.Request().Context(), jobID)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return c.JSON(http.StatusOK, models.ChatResponse{
			Success: true,
			Message: models.ChatMessage{Role: "assistant", Content: answer, Timestamp: time.Now()},
			History: job.ChatHistory,
		})
	}
}
