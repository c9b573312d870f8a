package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"cms-go/internal/cms"
	"cms-go/internal/frontmatter"
)

type userView struct {
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	CanDelete        bool      `json:"canDelete"`
	CanEditPublished bool      `json:"canEditPublished"`
	RequireReview    bool      `json:"requireReview"`
	JoinedAt         time.Time `json:"joinedAt"`
}

func newUserView(u *cms.User) userView {
	return userView{
		Email:            u.Email,
		Role:             string(u.Role),
		CanDelete:        u.MayDelete(),
		CanEditPublished: u.MayEditPublished(),
		RequireReview:    u.RequireReview(),
		JoinedAt:         u.JoinedAt,
	}
}

type recordView struct {
	Key          string    `json:"key"`
	Filename     string    `json:"filename"`
	Author       string    `json:"author"`
	Repo         string    `json:"repo"`
	Status       string    `json:"status"`
	LastModified time.Time `json:"lastModified"`
}

func newRecordView(r *cms.WorkingRecord) recordView {
	return recordView{
		Key:          r.ID,
		Filename:     r.Filename,
		Author:       r.AuthorEmail,
		Repo:         r.Repo,
		Status:       r.Status,
		LastModified: r.LastModified,
	}
}

type resultView struct {
	Stage    string `json:"stage,omitempty"`
	Key      string `json:"key,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Revision string `json:"revision,omitempty"`
	NoOp     bool   `json:"noop,omitempty"`
}

func newResultView(res cms.Result) resultView {
	v := resultView{Revision: res.Revision, NoOp: res.NoOp}
	if res.Stage != 0 {
		v.Stage = res.Stage.String()
	}
	if res.Key.Filename != "" {
		v.Key = res.Key.String()
		v.Filename = res.Key.Filename
	}
	if res.Ref.Filename != "" {
		v.Repo = res.Ref.Repo
		v.Path = res.Ref.Path
		v.Filename = res.Ref.Filename
	}
	return v
}

type mirrorView struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Hash     string    `json:"hash"`
	Type     string    `json:"type,omitempty"`
	Size     int64     `json:"size,omitempty"`
	LastSync time.Time `json:"lastSync"`
}

func newMirrorViews(rows []*cms.MirrorRow) []mirrorView {
	out := make([]mirrorView, 0, len(rows))
	for _, r := range rows {
		out = append(out, mirrorView{Filename: r.Filename, Path: r.Path, Hash: r.Hash, Type: r.Type, Size: r.Size, LastSync: r.LastSync})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, cms.ErrUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: string(cms.KindUnauthorized), Message: "invalid credentials"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	exp := s.clock.Now().Add(s.cfg.SessionTTL)
	token, err := SignSession(s.cfg.SessionSecret, u, exp)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("login", "email", u.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": exp,
		"user":      newUserView(u),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, actor *cms.User) {
	writeJSON(w, http.StatusOK, newUserView(actor))
}

func (s *Server) handleListWorking(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	stage := cms.StageDraft
	if raw := r.URL.Query().Get("stage"); raw != "" {
		st, err := cms.ParseStage(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		stage = st
	}
	recs, err := s.svc.ListWorking(r.Context(), actor, stage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newRecordView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorking(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	key, err := cms.ParseWorkingKey(p.ByName("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	item, err := s.svc.GetWorking(r.Context(), actor, key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{
		"key":      item.Key.String(),
		"stage":    item.Key.Stage.String(),
		"author":   item.Key.Author,
		"filename": item.Key.Filename,
		"title":    frontmatter.Title(item.Body, item.Key.Filename),
		"body":     string(item.Body),
	}
	if item.Record != nil {
		resp["lastModified"] = item.Record.LastModified
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSaveWorking creates a draft, or saves an existing one when key is set.
func (s *Server) handleSaveWorking(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Key      string `json:"key"`
		Filename string `json:"filename"`
		Body     string `json:"body"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	tr := cms.Request{Action: cms.ActionCreateDraft, Actor: actor, Filename: req.Filename, Body: []byte(req.Body)}
	status := http.StatusCreated
	if req.Key != "" {
		key, err := cms.ParseWorkingKey(req.Key)
		if err != nil {
			s.writeError(w, err)
			return
		}
		tr.Action = cms.ActionSaveDraft
		tr.Key = key
		status = http.StatusOK
	}
	s.transition(w, r, tr, status)
}

func (s *Server) handleRejectWorking(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	s.keyAction(w, r, p, actor, cms.ActionReject, "")
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	s.keyAction(w, r, p, actor, cms.ActionSubmit, "")
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	var req struct {
		Message string `json:"message"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.keyAction(w, r, p, actor, cms.ActionApprove, req.Message)
}

func (s *Server) keyAction(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User, action cms.Action, message string) {
	key, err := cms.ParseWorkingKey(p.ByName("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.transition(w, r, cms.Request{Action: action, Actor: actor, Key: key, Message: message}, http.StatusOK)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Key      string  `json:"key"`
		Filename string  `json:"filename"`
		Body     *string `json:"body"`
		Repo     string  `json:"repo"`
		Path     string  `json:"path"`
		Revision string  `json:"revision"`
		Message  string  `json:"message"`
		Source   *struct {
			Path     string `json:"path"`
			Filename string `json:"filename"`
		} `json:"source"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	tr := cms.Request{
		Action:   cms.ActionPublish,
		Actor:    actor,
		Filename: req.Filename,
		Revision: req.Revision,
		Message:  req.Message,
	}
	if req.Key != "" {
		key, err := cms.ParseWorkingKey(req.Key)
		if err != nil {
			s.writeError(w, err)
			return
		}
		tr.Key = key
	}
	if req.Body != nil {
		tr.Body = []byte(*req.Body)
	}
	if req.Filename != "" {
		tr.Target = cms.FileRef{Repo: req.Repo, Path: req.Path, Filename: req.Filename}
	}
	if req.Source != nil {
		tr.Source = &cms.FileRef{Repo: req.Repo, Path: req.Source.Path, Filename: req.Source.Filename}
	}
	s.transition(w, r, tr, http.StatusOK)
}

// fileAction serves trash, restore and purge, which address a remote file.
func (s *Server) fileAction(action cms.Action) handler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
		var req struct {
			Repo     string `json:"repo"`
			Path     string `json:"path"`
			Filename string `json:"filename"`
			Revision string `json:"revision"`
			Message  string `json:"message"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		s.transition(w, r, cms.Request{
			Action:   action,
			Actor:    actor,
			Target:   cms.FileRef{Repo: req.Repo, Path: req.Path, Filename: req.Filename},
			Revision: req.Revision,
			Message:  req.Message,
		}, http.StatusOK)
	}
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, req cms.Request, status int) {
	res, err := s.svc.Transition(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, status, newResultView(res))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Table  string `json:"table"`
		Repo   string `json:"repo"`
		Path   string `json:"path"`
		Branch string `json:"branch"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.Reconcile(r.Context(), actor, cms.Target{
		Table:  cms.MirrorTable(req.Table),
		Repo:   req.Repo,
		Path:   req.Path,
		Branch: req.Branch,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Repo   string `json:"repo"`
		Path   string `json:"path"`
		Branch string `json:"branch"`
		Stage  string `json:"stage"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var stage cms.Stage
	if req.Stage != "" {
		st, err := cms.ParseStage(req.Stage)
		if err != nil {
			s.writeError(w, err)
			return
		}
		stage = st
	}
	res, err := s.svc.MigrateWorking(r.Context(), actor, cms.DirRef{Repo: req.Repo, Path: req.Path, Branch: req.Branch}, stage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	res, err := s.svc.Sweep(r.Context(), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	users, err := s.svc.ListUsers(r.Context(), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertTeam(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Email            string `json:"email"`
		Role             string `json:"role"`
		CanDelete        bool   `json:"canDelete"`
		CanEditPublished bool   `json:"canEditPublished"`
		Password         string `json:"password"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	role, err := cms.ParseRole(req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.UpsertUser(r.Context(), actor, cms.User{
		Email:            req.Email,
		Role:             role,
		CanDelete:        req.CanDelete,
		CanEditPublished: req.CanEditPublished,
	}, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleRemoveTeam(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	if err := s.svc.RemoveUser(r.Context(), actor, p.ByName("email")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ *cms.User) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, fmt.Errorf("%w: invalid limit %q", cms.ErrInvalidInput, raw))
			return
		}
		limit = n
	}
	recs, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		ID         string     `json:"id"`
		Action     string     `json:"action"`
		Actor      string     `json:"actor"`
		Subject    string     `json:"subject"`
		Status     string     `json:"status"`
		FailedStep string     `json:"failedStep,omitempty"`
		StartedAt  time.Time  `json:"startedAt"`
		FinishedAt *time.Time `json:"finishedAt,omitempty"`
	}
	out := make([]entry, 0, len(recs))
	for _, rec := range recs {
		e := entry{
			ID:         rec.ID,
			Action:     rec.Action,
			Actor:      rec.Actor,
			Subject:    rec.Subject,
			Status:     rec.Status,
			FailedStep: rec.FailedStep,
			StartedAt:  rec.StartedAt,
		}
		if !rec.FinishedAt.IsZero() {
			finished := rec.FinishedAt
			e.FinishedAt = &finished
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ *cms.User) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	rows, err := s.svc.ListMedia(r.Context(), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMirrorViews(rows))
}

func (s *Server) handlePublished(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	rows, err := s.svc.ListPublished(r.Context(), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMirrorViews(rows))
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor *cms.User) {
	var req struct {
		Workflow string            `json:"workflow"`
		Ref      string            `json:"ref"`
		Inputs   map[string]string `json:"inputs"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.Dispatch(r.Context(), actor, req.Workflow, req.Ref, req.Inputs); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched", "workflow": req.Workflow})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User) {
	st, err := s.svc.RunStatus(r.Context(), actor, p.ByName("workflow"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         st.ID,
		"status":     st.Status,
		"conclusion": st.Conclusion,
		"url":        st.URL,
		"createdAt":  st.CreatedAt,
		"updatedAt":  st.UpdatedAt,
	})
}
