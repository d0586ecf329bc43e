package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stepfence/StepFence/internal/models"
)

// purchaseRequest is the body of POST /purchase.
type purchaseRequest struct {
	Target  string `json:"target"`
	Minutes int    `json:"minutes"`
	Cost    int64  `json:"cost"`
}

// claimRequest is the body of POST /tasks/claim.
type claimRequest struct {
	TaskID int `json:"task_id"`
}

// targetRequest is the body of POST /whitelist/toggle and POST /foreground.
type targetRequest struct {
	Target string `json:"target"`
}

// stepsRequest is the body of POST /steps: a cumulative sensor reading.
type stepsRequest struct {
	Reading int64 `json:"reading"`
}

func (s *Server) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.purchaseHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := models.ValidatePurchase(req.Target, req.Minutes, req.Cost); err != nil {
		slog.Warn("Server.purchaseHandler: validation failed", "error", err, "target", req.Target)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	purchased, err := s.ledger.Purchase(req.Target, req.Minutes, req.Cost)
	if err != nil {
		slog.Error("Server.purchaseHandler: purchase failed", "error", err, "target", req.Target)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process purchase"))
		return
	}
	if purchased {
		// The countdown aggregator stops itself when nothing is unlocked;
		// every successful purchase restarts it.
		s.countdown.Start(s.baseCtx)
	}

	balance, err := s.ledger.Balance()
	if err != nil {
		slog.Error("Server.purchaseHandler: balance read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read balance"))
		return
	}
	slog.Info("Server.purchaseHandler: processed", "target", req.Target, "purchased", purchased)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"purchased": purchased,
		"balance":   balance,
	}))
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	balance, err := s.ledger.Balance()
	if err != nil {
		slog.Error("Server.balanceHandler: balance read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read balance"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"balance": balance}))
}

func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	list, err := s.tasks.DailyTasks()
	if err != nil {
		slog.Error("Server.tasksHandler: task generation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load daily tasks"))
		return
	}
	claimed, err := s.tasks.ClaimedIDs()
	if err != nil {
		slog.Error("Server.tasksHandler: claimed set read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load claimed tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"tasks":   list,
		"claimed": claimed,
	}))
}

func (s *Server) claimHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.claimHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	credited, err := s.tasks.Claim(req.TaskID)
	if err != nil {
		slog.Error("Server.claimHandler: claim failed", "error", err, "task_id", req.TaskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process claim"))
		return
	}
	balance, err := s.ledger.Balance()
	if err != nil {
		slog.Error("Server.claimHandler: balance read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read balance"))
		return
	}
	slog.Info("Server.claimHandler: processed", "task_id", req.TaskID, "credited", credited)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"credited": credited,
		"balance":  balance,
	}))
}

func (s *Server) missionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	mission, err := s.mission.Active()
	if err != nil {
		slog.Error("Server.missionHandler: mission read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load mission"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"mission": mission}))
}

func (s *Server) missionEvaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	completed, err := s.mission.Evaluate(r.Context())
	if err != nil {
		slog.Error("Server.missionEvaluateHandler: evaluation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to evaluate mission"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"completed": completed}))
}

func (s *Server) unlockStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: target"))
		return
	}
	remaining, err := s.ledger.RemainingMillis(target)
	if err != nil {
		slog.Error("Server.unlockStatusHandler: grant read failed", "error", err, "target", target)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read unlock status"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"target":           target,
		"remaining_millis": remaining,
		"unlocked":         remaining > 0,
	}))
}

func (s *Server) whitelistHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	targets, err := s.cfg.Whitelist()
	if err != nil {
		slog.Error("Server.whitelistHandler: whitelist read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read whitelist"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"whitelist": targets}))
}

func (s *Server) whitelistToggleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.whitelistToggleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Target == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: target"))
		return
	}
	whitelisted, err := s.cfg.ToggleWhitelist(req.Target)
	if err != nil {
		slog.Error("Server.whitelistToggleHandler: toggle failed", "error", err, "target", req.Target)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to toggle whitelist"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"target":      req.Target,
		"whitelisted": whitelisted,
	}))
}

func (s *Server) stepsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stepsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.stepsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	today, err := s.tracker.Record(req.Reading)
	if err != nil {
		slog.Warn("Server.stepsHandler: reading rejected", "error", err, "reading", req.Reading)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	// New step data may complete the active mission.
	completed, err := s.mission.Evaluate(r.Context())
	if err != nil {
		slog.Warn("Server.stepsHandler: mission evaluation failed", "error", err)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"steps_today":       today,
		"mission_completed": completed,
	}))
}

func (s *Server) foregroundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.foregroundHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Target == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: target"))
		return
	}
	s.querier.Report(req.Target)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Foreground report accepted", nil))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	grants, err := s.ledger.ActiveGrants()
	if err != nil {
		slog.Error("Server.statusHandler: grant read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read grants"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"uptime_seconds":    int64(time.Since(s.startedAt).Seconds()),
		"active_grants":     grants,
		"countdown_running": s.countdown.Running(),
		"pending_timers":    s.timer.ListActive(),
	}))
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	w.WriteHeader(http.StatusMethodNotAllowed)
}
