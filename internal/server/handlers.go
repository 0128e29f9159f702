package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pomon/internal/utils"
	"pomon/pkg/monitor"
	"pomon/pkg/portal"
	"pomon/pkg/storage"
)

type apiResponse struct {
	Success  bool   `json:"success"`
	IsActive *bool  `json:"isActive,omitempty"`
	Message  string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active := s.Monitor.Active()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, IsActive: &active, Message: "Status fetched."})
}

// startRequest mirrors what the dashboard posts.
type startRequest struct {
	Username               string              `json:"username"`
	Password               string              `json:"password"`
	SiteType               string              `json:"siteType"`
	StartDate              string              `json:"startDate"`
	EndDate                string              `json:"endDate"`
	PollingIntervalMinutes int                 `json:"pollingIntervalMinutes"`
	EmailConfig            *emailConfigRequest `json:"emailConfig"`
}

type emailConfigRequest struct {
	RecipientEmail string `json:"recipientEmail"`
	SenderService  string `json:"senderService"`
	SenderUser     string `json:"senderUser"`
	SenderPass     string `json:"senderPass"`
	SMTPHost       string `json:"smtpHost"`
	SMTPPort       int    `json:"smtpPort"`
	SMTPSecure     bool   `json:"smtpSecure"`
}

// validate rejects bad input before any engine state is touched.
func (req *startRequest) validate() (monitor.Params, string) {
	if req.Username == "" || req.Password == "" {
		return monitor.Params{}, "Missing required parameters: username and password."
	}
	site, err := portal.ParseSite(req.SiteType)
	if err != nil {
		return monitor.Params{}, "Invalid or missing siteType. Supported: dry, perishable."
	}
	if _, err := portal.FormatAPIDate(req.StartDate); err != nil {
		return monitor.Params{}, "Invalid or missing startDate. Expected YYYY-MM-DD."
	}
	if _, err := portal.FormatAPIDate(req.EndDate); err != nil {
		return monitor.Params{}, "Invalid or missing endDate. Expected YYYY-MM-DD."
	}
	if req.PollingIntervalMinutes < 1 {
		return monitor.Params{}, "Polling interval must be a number >= 1 minute."
	}

	params := monitor.Params{
		Username:  req.Username,
		Password:  req.Password,
		Site:      site,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Interval:  time.Duration(req.PollingIntervalMinutes) * time.Minute,
	}
	if req.EmailConfig != nil {
		params.Email = &monitor.EmailConfig{
			Recipient:     req.EmailConfig.RecipientEmail,
			SenderService: req.EmailConfig.SenderService,
			SenderUser:    req.EmailConfig.SenderUser,
			SenderPass:    req.EmailConfig.SenderPass,
			SMTPHost:      req.EmailConfig.SMTPHost,
			SMTPPort:      req.EmailConfig.SMTPPort,
			SMTPSecure:    req.EmailConfig.SMTPSecure,
		}
	}
	return params, ""
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Invalid request body."})
		return
	}
	params, msg := req.validate()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: msg})
		return
	}

	if err := s.Monitor.Start(params); err != nil {
		if errors.Is(err, monitor.ErrAlreadyActive) {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Monitor is already active."})
			return
		}
		utils.Log.Errorf("Monitor start failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to start PO Monitor service. Check server logs."})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "PO Monitor service initiated."})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotActive) {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Monitor was not active."})
			return
		}
		utils.Log.Errorf("Monitor stop failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to stop PO Monitor service."})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "PO Monitor service stopped."})
}

type historyResponse struct {
	Cycles []storage.Cycle       `json:"cycles"`
	Alerts []storage.AlertRecord `json:"alerts"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{Cycles: []storage.Cycle{}, Alerts: []storage.AlertRecord{}}
	if s.Store != nil {
		cycles, err := s.Store.ListRecentCycles(r.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		alerts, err := s.Store.ListRecentAlerts(r.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Cycles = cycles
		resp.Alerts = alerts
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdates upgrades the connection and parks it on the hub until the
// client goes away. The engine never writes to clients directly.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	s.Hub.Register(conn)
	defer func() {
		s.Hub.Unregister(conn)
		conn.Close()
	}()

	// Drain reads so we notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
