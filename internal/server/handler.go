package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msto63/spiritflow/internal/journal"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
	"github.com/msto63/spiritflow/pkg/core/health"
	"github.com/msto63/spiritflow/pkg/core/logging"
	"github.com/msto63/spiritflow/pkg/core/version"
)

// Handler serves the REST API
type Handler struct {
	controllers   map[meditation.Flow]*player.Controller
	journal       journal.Store
	health        *health.Registry
	logger        *logging.Logger
	version       string
	toggleTimeout time.Duration
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// IntentionsRequest is the body of PUT /flows/{flow}/intentions
type IntentionsRequest struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// FlowResponse is a controller snapshot plus the last failure, if any
type FlowResponse struct {
	player.Snapshot
	Notice *player.Notice `json:"notice,omitempty"`
}

// NewHandler creates the API handler
func NewHandler(cfg Config, controllers map[meditation.Flow]*player.Controller, store journal.Store) *Handler {
	v := cfg.Version
	if v == "" {
		v = version.Server
	}
	timeout := cfg.ToggleTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ToggleTimeout
	}
	h := &Handler{
		controllers:   controllers,
		journal:       store,
		health:        health.NewRegistry("spiritflow", v),
		logger:        logging.New("handler"),
		version:       v,
		toggleTimeout: timeout,
	}

	h.health.Register("flows", h.flowsCheck)
	if store != nil {
		h.health.RegisterPing("journal", health.StatusDegraded, func(ctx context.Context) error {
			_, err := store.Statistics(ctx)
			return err
		})
	}
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	path = strings.Trim(path, "/")

	switch {
	case path == "":
		h.handleRoot(w, r)
	case path == "health":
		h.handleHealth(w, r)
	case path == "flows":
		h.handleFlows(w, r)
	case strings.HasPrefix(path, "flows/"):
		h.routeFlow(w, r, strings.TrimPrefix(path, "flows/"))
	case path == "journal":
		h.handleJournal(w, r)
	case strings.HasPrefix(path, "journal/"):
		h.handleJournalEntry(w, r, strings.TrimPrefix(path, "journal/"))
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "Endpoint not found", "")
	}
}

func (h *Handler) routeFlow(w http.ResponseWriter, r *http.Request, rest string) {
	name, action, _ := strings.Cut(rest, "/")

	flow, err := meditation.ParseFlow(name)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown_flow", "Unknown flow", name)
		return
	}
	c, ok := h.controllers[flow]
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_flow", "Flow not served", name)
		return
	}

	switch action {
	case "":
		h.handleFlow(w, r, c)
	case "intentions":
		h.handleIntentions(w, r, c)
	case "toggle":
		h.handleToggle(w, r, c)
	case "stop":
		h.handleStop(w, r, c)
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "Endpoint not found", "")
	}
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	flows := make([]meditation.Flow, 0, len(h.controllers))
	for _, f := range meditation.Flows {
		if _, ok := h.controllers[f]; ok {
			flows = append(flows, f)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "SpiritFlow",
		"version": h.version,
		"flows":   flows,
		"endpoints": []string{
			"GET /health",
			"GET /api/v1/flows",
			"GET /api/v1/flows/{flow}",
			"PUT /api/v1/flows/{flow}/intentions",
			"POST /api/v1/flows/{flow}/toggle",
			"POST /api/v1/flows/{flow}/stop",
			"GET /api/v1/journal",
			"GET /api/v1/ws",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := h.health.Check(ctx)
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

// flowsCheck is unhealthy when no flow can play audio and degraded when
// some flow lost its device.
func (h *Handler) flowsCheck(ctx context.Context) health.CheckResult {
	details := make(map[string]interface{}, len(h.controllers))
	disabled := 0
	for flow, c := range h.controllers {
		snap := c.Snapshot()
		if snap.Disabled {
			disabled++
			details[flow.String()] = "disabled"
			continue
		}
		details[flow.String()] = snap.State.String()
	}

	result := health.CheckResult{Status: health.StatusHealthy, Details: details}
	switch {
	case disabled == len(h.controllers):
		result.Status = health.StatusUnhealthy
		result.Message = "audio unavailable for every flow"
	case disabled > 0:
		result.Status = health.StatusDegraded
		result.Message = fmt.Sprintf("audio unavailable for %d flow(s)", disabled)
	}
	return result
}

func (h *Handler) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	snaps := make([]player.Snapshot, 0, len(h.controllers))
	for _, f := range meditation.Flows {
		if c, ok := h.controllers[f]; ok {
			snaps = append(snaps, c.Snapshot())
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"flows": snaps})
}

func (h *Handler) handleFlow(w http.ResponseWriter, r *http.Request, c *player.Controller) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	h.writeJSON(w, http.StatusOK, FlowResponse{Snapshot: c.Snapshot()})
}

func (h *Handler) handleIntentions(w http.ResponseWriter, r *http.Request, c *player.Controller) {
	if r.Method != http.MethodPut {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	var req IntentionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	c.SetIntentions(meditation.IntentionSet{
		Flow:      c.Flow(),
		Primary:   req.Primary,
		Secondary: req.Secondary,
	})
	h.writeJSON(w, http.StatusOK, FlowResponse{Snapshot: c.Snapshot()})
}

// handleToggle runs the toggle to completion. Generation is detached from
// the request so a dropped client does not abort it.
func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, c *player.Controller) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	// a generation may outlast the server write timeout
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(h.toggleTimeout + writeWait)); err != nil {
		h.logger.Debug("Cannot extend write deadline", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.toggleTimeout)
	defer cancel()

	err := c.Toggle(ctx)
	resp := FlowResponse{Snapshot: c.Snapshot()}
	if err == nil {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	kind := player.KindOf(err)
	resp.Notice = &player.Notice{Kind: kind, Message: kind.Message(), Detail: err.Error()}
	h.writeJSON(w, statusForKind(kind), resp)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request, c *player.Controller) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	c.Stop()
	h.writeJSON(w, http.StatusOK, FlowResponse{Snapshot: c.Snapshot()})
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, http.StatusNotFound, "journal_disabled", "Journal is disabled", "")
		return
	}
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{}
	if f := q.Get("flow"); f != "" {
		flow, err := meditation.ParseFlow(f)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "unknown_flow", "Unknown flow", f)
			return
		}
		filter.Flow = flow
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit", l)
			return
		}
		filter.Limit = n
	}

	entries, err := h.journal.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list journal", "error", err)
		h.writeError(w, http.StatusInternalServerError, "journal_error", "Failed to list journal", err.Error())
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) handleJournalEntry(w http.ResponseWriter, r *http.Request, id string) {
	if h.journal == nil {
		h.writeError(w, http.StatusNotFound, "journal_disabled", "Journal is disabled", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := h.journal.Get(r.Context(), id)
		if errors.Is(err, journal.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Entry not found", id)
			return
		}
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "journal_error", "Failed to get entry", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, entry)

	case http.MethodDelete:
		err := h.journal.Delete(r.Context(), id)
		if errors.Is(err, journal.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Entry not found", id)
			return
		}
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "journal_error", "Failed to delete entry", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

// statusForKind maps a failure kind to an HTTP status
func statusForKind(kind player.Kind) int {
	switch kind {
	case player.KindMissingCredential, player.KindDeviceUnavailable:
		return http.StatusServiceUnavailable
	case player.KindRemoteCallFailed, player.KindEmptyResult, player.KindDecodeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
