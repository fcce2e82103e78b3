package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/risk"
	"github.com/alanyoungcy/updownbot/internal/supervisor"
)

// StatusSource returns the latest report of one strategy instance.
type StatusSource interface {
	Latest() supervisor.Status
}

// RiskReader is the read side of the shared risk gate.
type RiskReader interface {
	GetStatus() risk.Status
	Positions() []risk.Entry
}

// StatusHandler serves the bot status and the risk ledger.
type StatusHandler struct {
	mode    string
	sources []StatusSource
	risk    RiskReader
	stats   domain.StatsReader
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler. stats may be nil.
func NewStatusHandler(mode string, sources []StatusSource, risk RiskReader, stats domain.StatsReader, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		sources: sources,
		risk:    risk,
		stats:   stats,
		logger:  logger.With(slog.String("handler", "status")),
	}
}

type statusResponse struct {
	Mode       string              `json:"mode"`
	Time       time.Time           `json:"time"`
	Risk       risk.Status         `json:"risk"`
	Strategies []supervisor.Status `json:"strategies"`
	Daily      *domain.DailyStats  `json:"daily,omitempty"`
}

// GetStatus returns every strategy's latest report, the risk summary and,
// when a journal is configured, today's closed-trade stats.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:       h.mode,
		Time:       time.Now().UTC(),
		Risk:       h.risk.GetStatus(),
		Strategies: make([]supervisor.Status, 0, len(h.sources)),
	}
	for _, src := range h.sources {
		resp.Strategies = append(resp.Strategies, src.Latest())
	}
	if h.stats != nil {
		day, err := h.stats.DailyStats(r.Context(), resp.Time)
		if err != nil {
			h.logger.WarnContext(r.Context(), "daily stats failed", slog.String("error", err.Error()))
		} else {
			resp.Daily = &day
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListPositions returns the open risk ledger across all strategies.
// GET /api/positions
func (h *StatusHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.risk.Positions()
	if positions == nil {
		positions = []risk.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}
