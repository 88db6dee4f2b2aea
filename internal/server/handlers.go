package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/tutor"
)

type moduleView struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Focus     string `json:"focus,omitempty"`
	Completed bool   `json:"completed"`
}

type categoryView struct {
	Name    string       `json:"name"`
	Level   int          `json:"level"`
	XP      int          `json:"xp"`
	Locked  bool         `json:"locked"`
	Modules []moduleView `json:"modules"`
}

type languageView struct {
	Key        string         `json:"key"`
	Name       string         `json:"name"`
	Professor  string         `json:"professor"`
	Enabled    bool           `json:"enabled"`
	Categories []categoryView `json:"categories"`
}

// handleLanguages lists the catalog with the learner's progress folded in.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	ledger := s.progress.Load(r.Context())

	out := make([]languageView, 0, len(s.catalog.Languages))
	for _, lang := range s.catalog.Languages {
		names := lang.CategoryNames()
		lp := ledger[lang.Key]
		lv := languageView{Key: lang.Key, Name: lang.Name, Professor: lang.Professor, Enabled: lang.Enabled}
		for i, c := range lang.Categories {
			cv := categoryView{Name: c.Name, Level: 1, Locked: ledger.Locked(lang.Key, names, i)}
			if lp != nil {
				cp := lp.Category(c.Name)
				cv.Level, cv.XP = cp.Level, cp.XP
			}
			for _, m := range c.Modules {
				cv.Modules = append(cv.Modules, moduleView{
					ID:        m.ID,
					Title:     m.Title,
					Focus:     m.Focus,
					Completed: lp != nil && lp.Completed(m.ID),
				})
			}
			lv.Categories = append(lv.Categories, cv)
		}
		out = append(out, lv)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.progress.Load(r.Context()))
}

// handleResetProgress clears one language with ?lang=, else everything.
func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	if key := r.URL.Query().Get("lang"); key != "" {
		if _, err := s.catalog.Language(key); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		ledger, err := s.progress.Update(r.Context(), func(l progress.Ledger) { l.ResetLanguage(key) })
		if err != nil {
			s.logger.Error("reset progress", zap.String("lang", key), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to reset progress")
			return
		}
		writeJSON(w, http.StatusOK, ledger)
		return
	}
	if err := s.progress.Reset(r.Context()); err != nil {
		s.logger.Error("reset progress", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset progress")
		return
	}
	writeJSON(w, http.StatusOK, progress.Ledger{})
}

type createSessionRequest struct {
	Language string `json:"language"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// handleCreateSession creates a session and, when a language is given,
// selects it. The greeting streams in the background; clients follow it
// on the websocket feed or by polling the session state.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	if req.Language != "" {
		lang, err := s.catalog.Language(req.Language)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if !lang.Enabled {
			writeError(w, statusFor(tutor.ErrLanguageDisabled), tutor.ErrLanguageDisabled.Error())
			return
		}
	}

	sess := s.manager.Create()
	if req.Language != "" {
		// Detached from the request: the greeting outlives it.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if err := sess.SelectLanguage(ctx, req.Language); err != nil {
				s.logger.Warn("greeting failed", zap.String("session", sess.ID), zap.Error(err))
			}
		}()
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{ID: sess.ID})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*tutor.Session, bool) {
	sess, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.limiter.forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectLanguage switches an existing session to another language
// and streams the new professor's greeting.
func (s *Server) handleSelectLanguage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.streamOp(w, r, sess, "language", func(ctx context.Context) error {
		return sess.SelectLanguage(ctx, req.Language)
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleSetCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess.SetCode(req.Code)
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Content string `json:"content"`
	// Code, when present, replaces the editor contents before asking.
	Code *string `json:"code,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.streamOp(w, r, sess, "message", func(ctx context.Context) error {
		if req.Code != nil {
			sess.SetCode(*req.Code)
		}
		return sess.Ask(ctx, req.Content)
	})
}

// handleRun runs the editor contents. A body with code replaces them once
// the run is admitted.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req *codeRequest
	if r.ContentLength != 0 {
		req = &codeRequest{}
		if !s.decode(w, r, req) {
			return
		}
	}
	s.streamOp(w, r, sess, "run", func(ctx context.Context) error {
		if req != nil {
			sess.SetCode(req.Code)
		}
		return sess.Run(ctx)
	})
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "module id must be a number")
		return
	}
	s.streamOp(w, r, sess, "module", func(ctx context.Context) error {
		return sess.SelectModule(ctx, id)
	})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.streamVerb(w, r, "continue", (*tutor.Session).Continue)
}

func (s *Server) handleDebugStart(w http.ResponseWriter, r *http.Request) {
	s.streamVerb(w, r, "debug_start", (*tutor.Session).StartDebug)
}

func (s *Server) handleDebugStep(w http.ResponseWriter, r *http.Request) {
	s.streamVerb(w, r, "debug_step", (*tutor.Session).StepDebug)
}

func (s *Server) handleDebugStop(w http.ResponseWriter, r *http.Request) {
	s.streamVerb(w, r, "debug_stop", (*tutor.Session).StopDebug)
}

func (s *Server) streamVerb(w http.ResponseWriter, r *http.Request, verb string, op func(*tutor.Session, context.Context) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.streamOp(w, r, sess, verb, func(ctx context.Context) error {
		return op(sess, ctx)
	})
}

// decode reads a JSON body, writing the error response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
