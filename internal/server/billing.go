package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/classbill/internal/checkout/domain"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
)

func (s *Server) registerBillingRoutes() {
	v1 := s.engine.Group("/v1/billing")
	v1.POST("/intent", s.CreatePaymentIntent)
	v1.POST("/subscriptions/start", s.StartCheckout)
	v1.POST("/subscriptions/finish", s.FinishCheckout)
	v1.GET("/transactions", s.ListTransactions)
}

func (s *Server) StartCheckout(c *gin.Context) {
	var req checkoutdomain.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.UserID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	if req.PlanID == 0 {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan_id"))
		return
	}

	resp, err := s.checkoutSvc.Start(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req checkoutdomain.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.UserID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	if req.PlanID == 0 {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan_id"))
		return
	}

	resp, err := s.checkoutSvc.CreateIntent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) FinishCheckout(c *gin.Context) {
	var req checkoutdomain.FinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.SubscriptionID) == "" {
		AbortWithError(c, newValidationError("subscription_id", "invalid_subscription_id", "invalid subscription_id"))
		return
	}

	resp, err := s.checkoutSvc.Finish(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query struct {
		OwnerID   string `form:"owner_id"`
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := snowflake.ParseString(strings.TrimSpace(query.OwnerID))
	if err != nil {
		AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "invalid owner_id"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListRequest{
		OwnerID:   ownerID,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}
