package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/telephony"
)

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/requests", s.createRequest)
		api.GET("/requests", s.listRequests)
		api.GET("/requests/:id", s.getRequest)
		api.GET("/requests/:id/updates", s.getRequestUpdates)
		api.POST("/requests/:id/submit", s.resubmitRequest)
		api.POST("/requests/:id/check", s.checkRequest)
		api.POST("/requests/:id/ticket", s.setTicket)
		api.GET("/districts", s.listDistricts)
		api.GET("/districts/:id", s.getDistrict)
	}
	router.POST(telephony.StatusCallbackPath, s.twilioCallStatus)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

type createRequestPayload struct {
	DistrictID          string `json:"districtId" binding:"required"`
	ContactName         string `json:"contactName" binding:"required"`
	CompanyName         string `json:"companyName"`
	Phone               string `json:"phone" binding:"required"`
	Email               string `json:"email" binding:"required"`
	Street              string `json:"street" binding:"required"`
	City                string `json:"city" binding:"required"`
	State               string `json:"state" binding:"required"`
	ZipCode             string `json:"zipCode" binding:"required"`
	County              string `json:"county"`
	WorkType            string `json:"workType" binding:"required"`
	WorkDescription     string `json:"workDescription" binding:"required"`
	StartDate           string `json:"startDate" binding:"required"` // YYYY-MM-DD
	DurationDays        int    `json:"durationDays"`
	Depth               string `json:"depth"`
	NearestCrossStreet  string `json:"nearestCrossStreet"`
	WorkAreaLength      string `json:"workAreaLength"`
	WorkAreaWidth       string `json:"workAreaWidth"`
	MarkedArea          bool   `json:"markedArea"`
	MarkingInstructions string `json:"markingInstructions"`
	ExplosivesUsed      bool   `json:"explosivesUsed"`
	EmergencyWork       bool   `json:"emergencyWork"`
	PermitNumber        string `json:"permitNumber"`
	SubmissionMethod    string `json:"submissionMethod"`
}

func (s *Server) createRequest(c *gin.Context) {
	var payload createRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	district, err := s.registry.GetByID(payload.DistrictID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown district: " + payload.DistrictID})
		return
	}

	if payload.SubmissionMethod != "" {
		method, err := models.ParseMethod(payload.SubmissionMethod)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !district.HasMethod(method) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "district " + district.ID + " does not support method " + string(method)})
			return
		}
	}

	startDate, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
		return
	}

	req := &models.Request{
		DistrictID:          payload.DistrictID,
		ContactName:         payload.ContactName,
		CompanyName:         payload.CompanyName,
		Phone:               payload.Phone,
		Email:               payload.Email,
		Street:              payload.Street,
		City:                payload.City,
		State:               payload.State,
		ZipCode:             payload.ZipCode,
		County:              payload.County,
		WorkType:            payload.WorkType,
		WorkDescription:     payload.WorkDescription,
		StartDate:           startDate,
		DurationDays:        payload.DurationDays,
		Depth:               payload.Depth,
		NearestCrossStreet:  payload.NearestCrossStreet,
		WorkAreaLength:      payload.WorkAreaLength,
		WorkAreaWidth:       payload.WorkAreaWidth,
		MarkedArea:          payload.MarkedArea,
		MarkingInstructions: payload.MarkingInstructions,
		ExplosivesUsed:      payload.ExplosivesUsed,
		EmergencyWork:       payload.EmergencyWork,
		PermitNumber:        payload.PermitNumber,
		SubmissionMethod:    payload.SubmissionMethod,
	}
	if err := s.store.Create(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.submitAsync(req.ID)
	c.JSON(http.StatusCreated, req)
}

// submitAsync runs a submission episode in the background. The episode is
// skipped when one is already in flight for the same request.
func (s *Server) submitAsync(requestID string) {
	if !s.beginEpisode(requestID) {
		return
	}
	go func() {
		defer s.endEpisode(requestID)
		req, err := s.store.Get(requestID)
		if err != nil {
			log.Printf("server: submit %s: %v", requestID, err)
			return
		}
		district, err := s.registry.GetByID(req.DistrictID)
		if err != nil {
			log.Printf("server: submit %s: %v", requestID, err)
			return
		}
		if _, err := s.submitter.Submit(context.Background(), req, district); err != nil {
			log.Printf("server: submit %s: %v", requestID, err)
		}
	}()
}

func (s *Server) listRequests(c *gin.Context) {
	var (
		requests []models.Request
		err      error
	)
	switch {
	case c.Query("district") != "":
		requests, err = s.store.ListActiveByDistrict(c.Query("district"))
	case c.Query("active") == "true":
		requests, err = s.store.ListActive()
	default:
		requests, err = s.store.ListRecent(100)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (s *Server) getRequest(c *gin.Context) {
	req, err := s.store.Get(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) getRequestUpdates(c *gin.Context) {
	updates, err := s.store.StatusUpdates(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updates)
}

// resubmitRequest retries a failed request. Requests that are pending are
// submitted as-is; anything already submitted is left alone.
func (s *Server) resubmitRequest(c *gin.Context) {
	id := c.Param("id")
	req, err := s.store.Get(id)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	switch req.Status {
	case models.StatusFailed:
		if _, err := s.store.Retry(id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case models.StatusPending:
		// fall through to submit
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "request " + id + " is " + req.Status + ", not retryable"})
		return
	}

	if !s.beginEpisode(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "a submission is already in flight for request " + id})
		return
	}
	go func() {
		defer s.endEpisode(id)
		req, err := s.store.Get(id)
		if err != nil {
			log.Printf("server: resubmit %s: %v", id, err)
			return
		}
		district, err := s.registry.GetByID(req.DistrictID)
		if err != nil {
			log.Printf("server: resubmit %s: %v", id, err)
			return
		}
		if _, err := s.submitter.Submit(context.Background(), req, district); err != nil {
			log.Printf("server: resubmit %s: %v", id, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "submitting"})
}

func (s *Server) checkRequest(c *gin.Context) {
	if s.checker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status checking is not configured"})
		return
	}
	result, err := s.checker.CheckRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type setTicketPayload struct {
	TicketNumber string `json:"ticketNumber" binding:"required"`
}

// setTicket records the real ticket number for a request that was submitted
// with a synthetic one, typically after a phone callback or a mailed
// confirmation arrives.
func (s *Server) setTicket(c *gin.Context) {
	var payload setTicketPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.ReconcileTicket(c.Param("id"), payload.TicketNumber); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	req, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

// twilioCallStatus receives call-progress callbacks from the telephony
// provider. The call sid is resolved to a request through the phone
// adapter's correlation registry, falling back to the tag the call was
// placed with. Callbacks for calls we no longer track are acknowledged and
// dropped.
func (s *Server) twilioCallStatus(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")
	if callSid == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	requestID := ""
	if s.calls != nil {
		if id, ok := s.calls.RequestForCall(callSid); ok {
			requestID = id
		}
	}
	if requestID == "" {
		requestID = c.Query("tag")
	}
	if requestID == "" {
		c.Status(http.StatusNoContent)
		return
	}

	details := map[string]interface{}{
		"callSid":    callSid,
		"callStatus": callStatus,
	}
	if d := c.PostForm("CallDuration"); d != "" {
		details["duration"] = d
	}
	if err := s.store.AppendStatusUpdate(requestID, "call_status", details); err != nil {
		log.Printf("server: call status for %s: %v", requestID, err)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listDistricts(c *gin.Context) {
	if state := c.Query("state"); state != "" {
		c.JSON(http.StatusOK, s.registry.ByState(state))
		return
	}
	c.JSON(http.StatusOK, s.registry.All())
}

func (s *Server) getDistrict(c *gin.Context) {
	district, err := s.registry.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, district)
}
