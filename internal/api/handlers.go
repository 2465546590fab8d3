package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quantick/pkg/quantick"
)

// Handler adapts the Service to gin.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListStrategies returns the registered strategy names.
func (h *Handler) ListStrategies(c *gin.Context) {
	names := h.svc.Strategies()
	c.JSON(http.StatusOK, gin.H{
		"count": len(names),
		"data":  names,
	})
}

// ListRuns returns stored runs filtered by the strategy, symbol and limit
// query parameters.
func (h *Handler) ListRuns(c *gin.Context) {
	req := quantick.ListRunsRequest{
		Strategy: c.Query("strategy"),
		Symbol:   c.Query("symbol"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(c, fmt.Errorf("%w: limit %q", errBadBody, v))
			return
		}
		req.Limit = n
	}

	runs, err := h.svc.ListRuns(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"data":  runs,
	})
}

// CreateRun runs a backtest from a JSON RunRequest.
func (h *Handler) CreateRun(c *gin.Context) {
	var req quantick.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}

	run, err := h.svc.Run(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if req.Save != nil && !*req.Save {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": run})
}

// CreateSweep runs a parameter sweep from a JSON SweepRequest.
func (h *Handler) CreateSweep(c *gin.Context) {
	var req quantick.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}

	runs, err := h.svc.Sweep(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"data":  runs,
	})
}

// GetRun returns one stored run with its trades.
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

// DeleteRun removes a stored run.
func (h *Handler) DeleteRun(c *gin.Context) {
	if err := h.svc.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTrades returns the ledger of a stored run.
func (h *Handler) GetTrades(c *gin.Context) {
	trades, err := h.svc.Trades(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(trades),
		"data":  trades,
	})
}

// GetEquity returns the equity curve of a stored run.
func (h *Handler) GetEquity(c *gin.Context) {
	points, err := h.svc.Equity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(points),
		"data":  points,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		h.svc.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
