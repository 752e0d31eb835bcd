package api

import (
	"net/http"
	"strconv"
	"time"

	"material-service/internal/models"
	"material-service/internal/service"
	"material-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	snapshots    *service.SnapshotService
	allocator    *service.AllocatorService
	consumptions *service.ConsumptionService
	approvals    *service.ApprovalService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	snapshots *service.SnapshotService,
	allocator *service.AllocatorService,
	consumptions *service.ConsumptionService,
	approvals *service.ApprovalService,
) *Handler {
	return &Handler{
		snapshots:    snapshots,
		allocator:    allocator,
		consumptions: consumptions,
		approvals:    approvals,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(requireIdentity())
	{
		v1.POST("/work-orders/:wo_id/materials/snapshot", h.buildSnapshot)
		v1.GET("/work-orders/:wo_id/materials", h.getMaterials)

		v1.POST("/work-orders/:wo_id/reservations/auto", h.autoReserve)
		v1.POST("/work-orders/:wo_id/reservations", h.reserveLot)
		v1.GET("/work-orders/:wo_id/requirements/:requirement_id/reservations", h.getReservations)
		v1.DELETE("/work-orders/:wo_id/reservations/:reservation_id", h.releaseReservation)
		v1.DELETE("/work-orders/:wo_id/reservations", h.releaseAll)

		v1.POST("/work-orders/:wo_id/consumptions", h.consume)
		v1.POST("/work-orders/:wo_id/consumptions/:consumption_id/reverse", h.reverse)
		v1.GET("/work-orders/:wo_id/genealogy", h.getGenealogy)

		v1.POST("/work-orders/:wo_id/over-consumption-requests", h.requestOverConsumption)
		v1.GET("/work-orders/:wo_id/over-consumption-requests", h.pendingOverConsumption)
		v1.POST("/over-consumption-requests/:request_id/approve", h.approveOverConsumption)
		v1.POST("/over-consumption-requests/:request_id/reject", h.rejectOverConsumption)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireIdentity extracts the org and actor headers set by the gateway.
// Every domain route is org-scoped; requests without identity are rejected
// before they reach a service.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader("X-Org-ID")
		userID := c.GetHeader("X-User-ID")
		if orgID == "" || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing X-Org-ID or X-User-ID header",
			})
			return
		}
		c.Set("org_id", orgID)
		c.Set("user_id", userID)
		c.Next()
	}
}

func identity(c *gin.Context) (orgID, userID string) {
	return c.GetString("org_id"), c.GetString("user_id")
}

// statusForCode maps engine error codes onto HTTP statuses. Cross-org
// lookups surface as plain not-found.
func statusForCode(code string) int {
	switch code {
	case models.CodeWONotFound, models.CodeRequirementNotFound, models.CodeLotNotFound,
		models.CodeReservationNotFound, models.CodeConsumptionNotFound, models.CodeRequestNotFound:
		return http.StatusNotFound
	case models.CodeInvalidWOStatus:
		return http.StatusConflict
	case "":
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func respondError(c *gin.Context, err error) {
	code := models.ErrCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}

// buildSnapshot (re)builds the requirement snapshot of a work order
func (h *Handler) buildSnapshot(c *gin.Context) {
	orgID, userID := identity(c)

	resp, err := h.snapshots.BuildSnapshot(c.Request.Context(), orgID, userID, c.Param("wo_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getMaterials lists the requirement set, with coverage when requested
func (h *Handler) getMaterials(c *gin.Context) {
	orgID, _ := identity(c)
	woID := c.Param("wo_id")

	if c.Query("coverage") == "true" {
		materials, err := h.snapshots.GetMaterialsWithCoverage(c.Request.Context(), orgID, woID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"materials": materials})
		return
	}

	materials, err := h.snapshots.GetMaterials(c.Request.Context(), orgID, woID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"materials": materials})
}

// autoReserve runs a policy-ordered allocation pass
func (h *Handler) autoReserve(c *gin.Context) {
	orgID, userID := identity(c)

	resp, err := h.allocator.AutoReserve(c.Request.Context(), orgID, userID, c.Param("wo_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// reserveLot earmarks a specific lot against a requirement
func (h *Handler) reserveLot(c *gin.Context) {
	orgID, userID := identity(c)

	var req service.ReserveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	reservation, err := h.allocator.ReserveLot(c.Request.Context(), orgID, userID, c.Param("wo_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reservation": reservation})
}

// getReservations lists active earmarks of one requirement
func (h *Handler) getReservations(c *gin.Context) {
	orgID, _ := identity(c)

	reservations, err := h.allocator.GetReservations(c.Request.Context(), orgID,
		c.Param("wo_id"), c.Param("requirement_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

// releaseReservation cancels one earmark
func (h *Handler) releaseReservation(c *gin.Context) {
	orgID, userID := identity(c)

	res, err := h.allocator.ReleaseReservation(c.Request.Context(), orgID, userID,
		c.Param("wo_id"), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reservation": res})
}

// releaseAll cancels every active earmark of a work order
func (h *Handler) releaseAll(c *gin.Context) {
	orgID, userID := identity(c)

	count, err := h.allocator.ReleaseAllForWorkOrder(c.Request.Context(), orgID, userID, c.Param("wo_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": count})
}

// consume records quantity withdrawn from a reserved lot
func (h *Handler) consume(c *gin.Context) {
	orgID, userID := identity(c)

	var req service.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.consumptions.Consume(c.Request.Context(), orgID, userID, c.Param("wo_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// reverse compensates a consumption
func (h *Handler) reverse(c *gin.Context) {
	orgID, userID := identity(c)

	var req service.ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.consumptions.Reverse(c.Request.Context(), orgID, userID,
		c.Param("wo_id"), c.Param("consumption_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getGenealogy lists the consumption trail of a work order
func (h *Handler) getGenealogy(c *gin.Context) {
	orgID, _ := identity(c)

	entries, err := h.consumptions.GetGenealogy(c.Request.Context(), orgID, c.Param("wo_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"genealogy": entries})
}

// requestOverConsumption opens a pending approval request
func (h *Handler) requestOverConsumption(c *gin.Context) {
	orgID, userID := identity(c)

	var input service.OverConsumptionRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	request, err := h.approvals.Request(c.Request.Context(), orgID, userID, c.Param("wo_id"), &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"request": request})
}

// pendingOverConsumption lists pending requests of a work order
func (h *Handler) pendingOverConsumption(c *gin.Context) {
	orgID, _ := identity(c)

	requests, err := h.approvals.GetPendingForWorkOrder(c.Request.Context(), orgID, c.Param("wo_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// approveOverConsumption approves a pending request
func (h *Handler) approveOverConsumption(c *gin.Context) {
	orgID, userID := identity(c)

	var input service.DecideInput
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	request, err := h.approvals.Approve(c.Request.Context(), orgID, userID, c.Param("request_id"), &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": request})
}

// rejectOverConsumption rejects a pending request
func (h *Handler) rejectOverConsumption(c *gin.Context) {
	orgID, userID := identity(c)

	var input service.DecideInput
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	request, err := h.approvals.Reject(c.Request.Context(), orgID, userID, c.Param("request_id"), &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": request})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
