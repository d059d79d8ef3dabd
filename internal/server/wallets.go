package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
)

func (s *Server) CreditWallet(c *gin.Context) {
	var req walletdomain.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.WalletID = c.Param("id")

	txn, err := s.walletSvc.Credit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordLedgerEntry(c.Request.Context(), string(walletdomain.TransactionTypeCredit))
	s.evaluateWalletAlerts(c, req.WalletID)
	c.JSON(http.StatusOK, txn)
}

func (s *Server) DebitWallet(c *gin.Context) {
	var req walletdomain.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.WalletID = c.Param("id")

	txn, err := s.walletSvc.Debit(c.Request.Context(), req)
	if err != nil {
		s.evaluateWalletAlerts(c, req.WalletID)
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordLedgerEntry(c.Request.Context(), string(walletdomain.TransactionTypeDebit))
	s.evaluateWalletAlerts(c, req.WalletID)
	c.JSON(http.StatusOK, txn)
}

func (s *Server) GetWalletBalance(c *gin.Context) {
	wallet, err := s.walletSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet_id": wallet.ID.String(),
		"currency":  wallet.Currency,
		"balance":   wallet.Balance,
	})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	pageSize := 0
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, invalidRequestError())
			return
		}
		pageSize = parsed
	}

	from, err := parseOptionalTime(c.Query("from"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	to, err := parseOptionalTime(c.Query("to"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := walletdomain.ListTransactionsRequest{
		WalletID:  c.Param("id"),
		Type:      c.Query("type"),
		Status:    c.Query("status"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	}
	if from != nil {
		req.From = *from
	}
	if to != nil {
		req.To = *to
	}

	resp, err := s.walletSvc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ReverseWalletTransaction(c *gin.Context) {
	txn, err := s.walletSvc.Reverse(c.Request.Context(), c.Param("id"), c.Param("txn_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (s *Server) ListWalletAlerts(c *gin.Context) {
	alerts, err := s.alertSvc.ListByWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// evaluateWalletAlerts re-checks crossing state after a balance change. A
// failed evaluation never fails the ledger call that triggered it.
func (s *Server) evaluateWalletAlerts(c *gin.Context, walletID string) {
	wallet, err := s.walletSvc.Get(c.Request.Context(), walletID)
	if err != nil {
		return
	}
	_, _ = s.alertSvc.Evaluate(c.Request.Context(), wallet)
}

func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
