package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobSvc,
	}
}

// Stats returns the current worker status
// @Summary Get background job stats
// @Description Active, completed and failed jobs, queue length and the recurring schedules
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} jobs.WorkerStats
// @Router /jobs/stats [get]
func (h *JobHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.GetStatus())
}

// Run queues a scheduled job now
// @Summary Run a scheduled job
// @Tags Jobs
// @Produce json
// @Param name path string true "ledger_reconcile, stale_draft_cleanup or token_notification_cleanup"
// @Security BearerAuth
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /jobs/{name}/run [post]
func (h *JobHandler) Run(c *gin.Context) {
	if err := h.jobService.RunNow(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "任务已加入队列"})
}
