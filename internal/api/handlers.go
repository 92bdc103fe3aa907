package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campaignforge/hookrelay/internal/webhook"
)

func (s *Server) registerSubscription(c *gin.Context) {
	var req RegisterSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	sub, secret, err := s.svc.Register(c.Request.Context(), req.WorkflowID, webhook.SubscriptionConfig{
		TargetURL:     req.TargetURL,
		EventTypes:    req.EventTypes,
		CustomHeaders: req.CustomHeaders,
		RetryPolicy:   req.RetryPolicy,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_input", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, RegisterSubscriptionResponse{Subscription: sub, Secret: secret})
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, found, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		s.notFound(c)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) updateSubscription(c *gin.Context) {
	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	found, err := s.svc.Update(c.Request.Context(), c.Param("id"), webhook.SubscriptionUpdate{
		TargetURL:     req.TargetURL,
		EventTypes:    req.EventTypes,
		Active:        req.Active,
		CustomHeaders: req.CustomHeaders,
		RetryPolicy:   req.RetryPolicy,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_input", Message: err.Error()})
		return
	}
	if !found {
		s.notFound(c)
		return
	}

	sub, _, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) deleteSubscription(c *gin.Context) {
	found, err := s.svc.Unregister(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		s.notFound(c)
		return
	}
	c.Data(http.StatusNoContent, "application/json", nil)
}

func (s *Server) testSubscription(c *gin.Context) {
	res, found, err := s.svc.TestDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		s.notFound(c)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) dispatchEvent(c *gin.Context) {
	var req DispatchEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if !webhook.KnownEventType(req.Type) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "invalid_input", Message: "unknown event type " + strconv.Quote(req.Type),
		})
		return
	}

	payloadID, matched := s.svc.Dispatch(c.Request.Context(), webhook.Event{
		WorkflowID: req.WorkflowID,
		Type:       req.Type,
		Data:       req.Data,
		Timestamp:  req.Timestamp,
	})
	c.JSON(http.StatusAccepted, DispatchEventResponse{PayloadID: payloadID, Matched: matched})
}

func (s *Server) listHistory(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	records := s.svc.History(c.Query("subscription_id"), limit)
	c.JSON(http.StatusOK, HistoryResponse{Records: records})
}

func (s *Server) listDeadLetters(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	c.JSON(http.StatusOK, DeadLettersResponse{Payloads: s.svc.DeadLetters(limit)})
}

func (s *Server) retryDeadLetter(c *gin.Context) {
	found, err := s.svc.RetryDeadLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		s.notFound(c)
		return
	}
	c.JSON(http.StatusOK, RetryDeadLetterResponse{Replayed: true})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.svc.Statistics(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "the requested resource was not found"})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.WithContext(c.Request.Context()).WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "an internal error occurred"})
}

// parseLimit returns 0 for absent or invalid values; the service applies its
// own defaults.
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
