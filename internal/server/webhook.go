package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/classbill/internal/webhook/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/billing/webhook", s.HandleStripeWebhook)
}

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	summary, err := s.webhookSvc.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		// Payloads that will never parse are acknowledged so the gateway
		// stops retrying them; everything else surfaces for redelivery.
		if errors.Is(err, webhookdomain.ErrUnprocessable) {
			s.log.Warn("acknowledging unprocessable webhook payload", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
