package httpserver

import (
	"net/http"
	"time"

	"github.com/CedrosPay/cardcheckout/pkg/responders"
)

type healthResponse struct {
	Status              string `json:"status"`
	Uptime              string `json:"uptime"`
	Timestamp           string `json:"timestamp"`
	Provider            string `json:"provider"`
	Environment         string `json:"environment"`
	CircuitBreaker      string `json:"circuitBreaker"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
	ActiveSessions      int    `json:"activeSessions"`
	RoutePrefix         string `json:"routePrefix,omitempty"`
}

// health reports liveness. An open processor breaker degrades the service.
func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	breakerState := h.breakers.State(h.service)

	resp := healthResponse{
		Status:              "ok",
		Uptime:              time.Since(serverStartTime).Round(time.Second).String(),
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		Provider:            h.cfg.Processor.Provider,
		Environment:         h.cfg.Processor.Environment,
		CircuitBreaker:      breakerState,
		ConsecutiveFailures: h.breakers.Counts(h.service).ConsecutiveFailures,
		RoutePrefix:         h.cfg.Server.RoutePrefix,
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.Len()
	}

	status := http.StatusOK
	if breakerState == "open" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	responders.JSON(w, status, resp)
}

// widgetConfig returns what the browser needs to mount the card iframes.
func (h handlers) widgetConfig(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, h.widget)
}
