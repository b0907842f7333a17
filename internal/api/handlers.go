package api

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/sidekick/internal/logger"
	"github.com/ternarybob/sidekick/pkg/assist"
	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/prompt"
	"github.com/ternarybob/sidekick/pkg/session"
	"github.com/ternarybob/sidekick/web"
)

// Version is set at build time.
var Version = "dev"

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse reports the service version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// AskRequest drives one assistant invocation.
type AskRequest struct {
	// Text is the user's task text.
	Text string `json:"text"`

	// File is the optional attached code excerpt.
	File *FileContext `json:"file,omitempty"`

	// UseSession resumes the stored continuation token.
	UseSession bool `json:"use_session"`

	// Region identifies the host display anchor. Optional; defaults to
	// the file path.
	Region string `json:"region,omitempty"`
}

// FileContext mirrors prompt.FileContext on the wire.
type FileContext struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	Filetype  string `json:"filetype,omitempty"`
	Text      string `json:"text,omitempty"`
}

// AskResponse acknowledges a started request.
type AskResponse struct {
	Started bool `json:"started"`
}

// StatusResponse reports the manager state and the last rendered frame.
type StatusResponse struct {
	Request assist.State   `json:"request"`
	Frame   *display.Frame `json:"frame,omitempty"`
}

// SessionResponse reports the continuation-token slot.
type SessionResponse struct {
	Session session.State `json:"session"`
	Request assist.State  `json:"request"`
}

// SkillResponse describes one loaded skill.
type SkillResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
	Path        string   `json:"path"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := web.Static.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: Version,
		Service: "sidekick-service",
	})
}

// handleAsk composes the prompt and starts a request. An in-flight request
// is superseded, matching the lifecycle contract.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var fc prompt.FileContext
	region := display.Region{ID: req.Region}
	if req.File != nil {
		fc = prompt.FileContext{
			Path:      req.File.Path,
			StartLine: req.File.StartLine,
			EndLine:   req.File.EndLine,
			Filetype:  req.File.Filetype,
			Text:      req.File.Text,
		}
		region.Path = req.File.Path
		region.StartLine = req.File.StartLine
		region.EndLine = req.File.EndLine
		if region.ID == "" {
			region.ID = req.File.Path
		}
	}
	if region.ID == "" {
		region.ID = "default"
	}

	composed := s.composer.Compose(req.Text, fc)

	logger.GetLogger().Info().
		Str("region", region.ID).
		Bool("session", req.UseSession).
		Msg("Ask request received")

	s.manager.Start(assist.Request{
		Prompt:     composed,
		Region:     region,
		UseSession: req.UseSession,
	})

	writeJSON(w, http.StatusAccepted, AskResponse{Started: true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.manager.Cancel()
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.manager.Dismiss()
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

// handleSessionState exposes the continuation token slot for debugging.
func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		Session: s.sessions.Snapshot(),
		Request: s.manager.Snapshot(),
	})
}

// handleNewSession clears the continuation token: the next request starts a
// fresh conversation.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear()
	logger.GetLogger().Info().Msg("Session cleared")
	writeJSON(w, http.StatusOK, SessionResponse{
		Session: s.sessions.Snapshot(),
		Request: s.manager.Snapshot(),
	})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills := s.registry.LoadAll()

	response := make([]SkillResponse, 0, len(skills))
	for id, sk := range skills {
		response = append(response, SkillResponse{
			ID:          id,
			Name:        sk.Name,
			Description: sk.Description,
			Keywords:    sk.Keywords,
			Path:        sk.Path,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) statusResponse() StatusResponse {
	resp := StatusResponse{Request: s.manager.Snapshot()}
	if s.frames != nil {
		// The frame is keyed by region; report whichever was last active.
		if f, ok := s.frames.LastRendered(); ok {
			resp.Frame = &f
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
