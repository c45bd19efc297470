package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bloodbank-platform/allocation-service/pkg/api"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/middleware"

	"github.com/bloodbank-platform/allocation-service/internal/application"
	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

type handlerDefaults struct {
	reservationTimeout time.Duration
}

type handlers struct {
	ledger      *application.LedgerService
	reservation *application.ReservationService
	matcher     *application.MatcherService
	broadcaster *application.BroadcasterService
	defaults    handlerDefaults
	logger      *logging.Logger
}

func registerRoutes(router *gin.Engine, h *handlers) {
	v1 := router.Group("/api/v1")

	stock := v1.Group("/stock")
	{
		// Static routes first
		stock.GET("", h.listStock)
		stock.GET("/low", h.lowStock)
		stock.GET("/compatibility/:bloodGroup", h.compatibility)

		stock.POST("/:bankId/batches", h.addBatch)
		stock.GET("/:bankId", h.bankStock)
		stock.GET("/:bankId/availability", h.availability)
		stock.POST("/:bankId/issue", h.issueStock)
	}

	reservations := v1.Group("/reservations")
	{
		reservations.POST("", h.reserve)
		reservations.GET("", h.listReservations)
		reservations.GET("/:id", h.getReservation)
		reservations.POST("/:id/commit", h.commitReservation)
		reservations.POST("/:id/release", h.releaseReservation)
	}

	requests := v1.Group("/requests")
	{
		requests.POST("", h.createRequest)
		requests.GET("", h.listRequests)
		requests.GET("/:id", h.getRequest)
		requests.POST("/:id/match", h.runMatching)
		requests.POST("/:id/contact", h.contactDonor)
		requests.POST("/:id/responses", h.donorResponse)
		requests.POST("/:id/fulfill", h.fulfillFromStock)
		requests.POST("/:id/transition", h.transitionOrganRequest)
		requests.POST("/:id/cancel", h.cancelRequest)
	}

	alerts := v1.Group("/alerts")
	{
		alerts.POST("", h.raiseAlert)
		alerts.GET("", h.listAlerts)
		alerts.GET("/:id", h.getAlert)
		alerts.POST("/:id/responses", h.alertResponse)
		alerts.POST("/:id/fulfillments", h.alertFulfillment)
		alerts.POST("/:id/resolve", h.resolveAlert)
		alerts.POST("/:id/cancel", h.cancelAlert)
	}
}

func (h *handlers) addBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		BloodGroup  string    `json:"bloodGroup" binding:"required,blood_group"`
		Component   string    `json:"component" binding:"required,component"`
		BatchID     string    `json:"batchId" binding:"required"`
		Units       int       `json:"units" binding:"required,min=1"`
		CollectedAt time.Time `json:"collectedAt" binding:"required"`
		ExpiresAt   time.Time `json:"expiresAt" binding:"required"`
		DonationIDs []string  `json:"donationIds"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.ledger.AddBatch(c.Request.Context(), application.AddBatchCommand{
		BankID:      c.Param("bankId"),
		BloodGroup:  req.BloodGroup,
		Component:   req.Component,
		BatchID:     req.BatchID,
		Units:       req.Units,
		CollectedAt: req.CollectedAt,
		ExpiresAt:   req.ExpiresAt,
		DonationIDs: req.DonationIDs,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *handlers) listStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	page := api.ParsePagination(c)
	filter := domain.StockLineFilter{
		BankID:     c.Query("bankId"),
		BloodGroup: domain.BloodGroup(c.Query("bloodGroup")),
		Component:  domain.Component(c.Query("component")),
	}
	dtos, total, err := h.ledger.ListStockLines(c.Request.Context(), filter,
		int(page.GetOffset()), int(page.GetLimit()))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, api.NewPageResponse(dtos, page.Page, page.PageSize, total))
}

func (h *handlers) bankStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	lines, err := h.ledger.BankAvailability(c.Request.Context(), c.Param("bankId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bankId": c.Param("bankId"), "lines": lines})
}

// availability answers either one line's compatible availability (when
// bloodGroup is given) or the whole bank's lines.
func (h *handlers) availability(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	bankID := c.Param("bankId")
	bloodGroup := c.Query("bloodGroup")
	component := c.Query("component")

	if bloodGroup == "" {
		lines, err := h.ledger.BankAvailability(c.Request.Context(), bankID)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bankId": bankID, "lines": lines})
		return
	}

	if component == "" {
		component = string(domain.ComponentWholeBlood)
	}
	byGroup, err := h.ledger.CompatibleAvailability(c.Request.Context(), bankID, bloodGroup, component)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bankId":     bankID,
		"bloodGroup": bloodGroup,
		"component":  component,
		"byGroup":    byGroup,
	})
}

func (h *handlers) lowStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	lines, err := h.ledger.LowStock(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

func (h *handlers) compatibility(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	group := domain.BloodGroup(c.Param("bloodGroup"))
	donors, err := domain.CompatibleDonors(group)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	recipients, err := domain.CompatibleRecipients(group)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	dto := application.CompatibilityDTO{BloodGroup: string(group)}
	for _, g := range donors {
		dto.Donors = append(dto.Donors, string(g))
	}
	for _, g := range recipients {
		dto.Recipients = append(dto.Recipients, string(g))
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) issueStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		BloodGroup string `json:"bloodGroup" binding:"required,blood_group"`
		Component  string `json:"component" binding:"required,component"`
		Units      int    `json:"units" binding:"required,min=1"`
		RequestID  string `json:"requestId"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	consumed, err := h.ledger.IssueStock(c.Request.Context(), application.IssueStockCommand{
		BankID:     c.Param("bankId"),
		BloodGroup: req.BloodGroup,
		Component:  req.Component,
		Units:      req.Units,
		RequestID:  req.RequestID,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consumed": consumed})
}

func (h *handlers) reserve(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		BankID     string `json:"bankId" binding:"required,bank_id"`
		BloodGroup string `json:"bloodGroup" binding:"required,blood_group"`
		Component  string `json:"component" binding:"required,component"`
		Units      int    `json:"units" binding:"required,min=1"`
		RequestID  string `json:"requestId"`
		TimeoutMin int    `json:"timeoutMinutes" binding:"omitempty,min=1"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	timeout := h.defaults.reservationTimeout
	if req.TimeoutMin > 0 {
		timeout = time.Duration(req.TimeoutMin) * time.Minute
	}

	dto, err := h.reservation.Reserve(c.Request.Context(), application.ReserveCommand{
		BankID:     req.BankID,
		BloodGroup: req.BloodGroup,
		Component:  req.Component,
		Units:      req.Units,
		RequestID:  req.RequestID,
		Timeout:    timeout,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *handlers) listReservations(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	page := api.ParsePagination(c)
	dtos, total, err := h.reservation.ListReservations(c.Request.Context(),
		c.Query("bankId"), c.Query("status"), int(page.GetOffset()), int(page.GetLimit()))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, api.NewPageResponse(dtos, page.Page, page.PageSize, total))
}

func (h *handlers) getReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.reservation.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) commitReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.reservation.Commit(c.Request.Context(), application.CommitReservationCommand{
		ReservationID: c.Param("id"),
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) releaseReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.reservation.Release(c.Request.Context(), application.ReleaseReservationCommand{
		ReservationID: c.Param("id"),
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) createRequest(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Kind       string     `json:"kind" binding:"required,oneof=blood organ"`
		HospitalID string     `json:"hospitalId" binding:"required"`
		Latitude   float64    `json:"latitude"`
		Longitude  float64    `json:"longitude"`
		BloodGroup string     `json:"bloodGroup" binding:"required,blood_group"`
		Urgency    string     `json:"urgency" binding:"required"`
		RequiredBy *time.Time `json:"requiredBy"`

		// Blood requests
		Component string `json:"component" binding:"omitempty,component"`
		Units     int    `json:"units" binding:"omitempty,min=1"`

		// Organ requests
		OrganType          string  `json:"organType" binding:"omitempty,organ_type"`
		MinAge             int     `json:"minAge"`
		MaxAge             int     `json:"maxAge"`
		MinWeightKg        float64 `json:"minWeightKg"`
		MaxWeightKg        float64 `json:"maxWeightKg"`
		MinHeightCm        float64 `json:"minHeightCm"`
		MaxHeightCm        float64 `json:"maxHeightCm"`
		HLAMatchLevel      string  `json:"hlaMatchLevel"`
		CrossmatchRequired bool    `json:"crossmatchRequired"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	ctx := c.Request.Context()
	var (
		dto *application.RequestDTO
		err error
	)
	if req.Kind == "organ" {
		dto, err = h.matcher.CreateOrganRequest(ctx, application.CreateOrganRequestCommand{
			HospitalID:         req.HospitalID,
			Latitude:           req.Latitude,
			Longitude:          req.Longitude,
			BloodGroup:         req.BloodGroup,
			OrganType:          req.OrganType,
			MinAge:             req.MinAge,
			MaxAge:             req.MaxAge,
			MinWeightKg:        req.MinWeightKg,
			MaxWeightKg:        req.MaxWeightKg,
			MinHeightCm:        req.MinHeightCm,
			MaxHeightCm:        req.MaxHeightCm,
			HLAMatchLevel:      req.HLAMatchLevel,
			CrossmatchRequired: req.CrossmatchRequired,
			Urgency:            req.Urgency,
			RequiredBy:         req.RequiredBy,
		})
	} else {
		dto, err = h.matcher.CreateBloodRequest(ctx, application.CreateBloodRequestCommand{
			HospitalID: req.HospitalID,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			BloodGroup: req.BloodGroup,
			Component:  req.Component,
			Units:      req.Units,
			Urgency:    req.Urgency,
			RequiredBy: req.RequiredBy,
		})
	}
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *handlers) listRequests(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	page := api.ParsePagination(c)
	filter := domain.RequestFilter{
		Kind:       domain.RequestKind(c.Query("kind")),
		HospitalID: c.Query("hospitalId"),
		Status:     c.Query("status"),
		Urgency:    domain.Urgency(c.Query("urgency")),
	}
	dtos, total, err := h.matcher.ListRequests(c.Request.Context(), filter, int(page.GetOffset()), int(page.GetLimit()))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, api.NewPageResponse(dtos, page.Page, page.PageSize, total))
}

func (h *handlers) getRequest(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.matcher.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) runMatching(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		MaxRadiusKm float64 `json:"maxRadiusKm" binding:"omitempty,min=1"`
		Limit       int     `json:"limit" binding:"omitempty,min=1,max=100"`
	}
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	dto, err := h.matcher.FindCandidates(c.Request.Context(), application.RunMatchingCommand{
		RequestID: c.Param("id"),
		MaxRadius: req.MaxRadiusKm,
		Limit:     req.Limit,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) contactDonor(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		DonorID string `json:"donorId" binding:"required"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.matcher.ContactDonor(c.Request.Context(), application.ContactDonorCommand{
		RequestID: c.Param("id"),
		DonorID:   req.DonorID,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) donorResponse(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		DonorID  string `json:"donorId" binding:"required"`
		Response string `json:"response" binding:"required,oneof=accepted declined no_response"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.matcher.RecordDonorResponse(c.Request.Context(), application.DonorResponseCommand{
		RequestID: c.Param("id"),
		DonorID:   req.DonorID,
		Response:  req.Response,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) fulfillFromStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		BankID string `json:"bankId" binding:"required,bank_id"`
		Units  int    `json:"units" binding:"omitempty,min=1"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dtos, err := h.reservation.FulfillFromStock(c.Request.Context(), application.FulfillFromStockCommand{
		RequestID: c.Param("id"),
		BankID:    req.BankID,
		Units:     req.Units,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": dtos})
}

func (h *handlers) transitionOrganRequest(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		To   string `json:"to" binding:"required,oneof=transplant_scheduled transplanted deceased"`
		Note string `json:"note" binding:"omitempty,safe_string"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.matcher.TransitionOrganRequest(c.Request.Context(), application.TransitionOrganRequestCommand{
		RequestID: c.Param("id"),
		To:        req.To,
		Note:      req.Note,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) cancelRequest(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Note string `json:"note" binding:"omitempty,safe_string"`
	}
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	dto, err := h.matcher.CancelRequest(c.Request.Context(), application.CancelRequestCommand{
		RequestID: c.Param("id"),
		Note:      req.Note,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) raiseAlert(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		AlertType  string  `json:"alertType" binding:"required"`
		Severity   string  `json:"severity" binding:"required,oneof=info warning critical"`
		HospitalID string  `json:"hospitalId" binding:"required"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		Message    string  `json:"message" binding:"required,safe_string"`

		Requirements []struct {
			BloodGroup    string `json:"bloodGroup" binding:"required,blood_group"`
			Component     string `json:"component" binding:"required,component"`
			RequiredUnits int    `json:"requiredUnits" binding:"required,min=1"`
		} `json:"requirements" binding:"required,min=1,dive"`

		BloodGroups []string   `json:"bloodGroups" binding:"omitempty,dive,blood_group"`
		RadiusKm    float64    `json:"radiusKm" binding:"omitempty,min=1"`
		BankIDs     []string   `json:"bankIds"`
		ExpiresAt   *time.Time `json:"expiresAt"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	cmd := application.RaiseAlertCommand{
		AlertType:   req.AlertType,
		Severity:    req.Severity,
		HospitalID:  req.HospitalID,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Message:     req.Message,
		BloodGroups: req.BloodGroups,
		RadiusKm:    req.RadiusKm,
		BankIDs:     req.BankIDs,
		ExpiresAt:   req.ExpiresAt,
	}
	for _, r := range req.Requirements {
		cmd.Requirements = append(cmd.Requirements, application.AlertRequirementInput{
			BloodGroup:    r.BloodGroup,
			Component:     r.Component,
			RequiredUnits: r.RequiredUnits,
		})
	}

	dto, err := h.broadcaster.RaiseAlert(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *handlers) listAlerts(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	page := api.ParsePagination(c)
	dtos, total, err := h.broadcaster.ListAlerts(c.Request.Context(),
		c.Query("hospitalId"), c.Query("status"), int(page.GetOffset()), int(page.GetLimit()))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, api.NewPageResponse(dtos, page.Page, page.PageSize, total))
}

func (h *handlers) getAlert(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.broadcaster.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) alertResponse(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		DonorID       string `json:"donorId" binding:"required"`
		Confirmed     bool   `json:"confirmed"`
		ETAMinutes    int    `json:"etaMinutes" binding:"omitempty,min=0"`
		TransportMode string `json:"transportMode" binding:"omitempty,safe_string"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.broadcaster.RecordResponse(c.Request.Context(), application.AlertResponseCommand{
		AlertID:   c.Param("id"),
		DonorID:   req.DonorID,
		Confirmed: req.Confirmed,
	}, req.ETAMinutes, req.TransportMode)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) alertFulfillment(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		BloodGroup string `json:"bloodGroup" binding:"required,blood_group"`
		Component  string `json:"component" binding:"required,component"`
		Units      int    `json:"units" binding:"required,min=1"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	dto, err := h.broadcaster.ApplyFulfillment(c.Request.Context(),
		c.Param("id"), req.BloodGroup, req.Component, req.Units)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) resolveAlert(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.broadcaster.ResolveAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *handlers) cancelAlert(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	dto, err := h.broadcaster.CancelAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, dto)
}
