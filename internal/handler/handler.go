package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
	"github.com/pavelanni/trivia/internal/remote"
	"github.com/pavelanni/trivia/internal/repository"
)

const maxBodyBytes = 4 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	repo    *repository.Repository
	catalog *i18n.Catalog
}

// New creates a new Handler.
func New(repo *repository.Repository, catalog *i18n.Catalog) *Handler {
	return &Handler{repo: repo, catalog: catalog}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.catalog.Middleware)
	r.Get("/topics/{mode}", h.handleList)
	r.Get("/topics/{mode}/{index}", h.handleTopic)
	r.Get("/topics/{mode}/{index}/export", h.handleExport)
	r.Post("/topics/saved", h.handleSave)
	r.Post("/topics/saved/delete", h.handleDeleteSaved)
	r.Delete("/topics/saved/{name}", h.handleDeleteSavedByName)
	r.Post("/community/refresh", h.handleRefresh)
	r.Post("/parse", h.handleParse)
}

type topicSummary struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Source    string `json:"source"`
	State     string `json:"state"`
	Questions int    `json:"questions"`
	Label     string `json:"label"`
}

type topicDetail struct {
	topicSummary
	Quiz model.QuizExport `json:"quiz"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) summary(ctx context.Context, i int, e model.TopicEntry) topicSummary {
	s := topicSummary{
		Index:     i,
		Name:      e.Name,
		Source:    string(e.Provenance),
		State:     string(e.State),
		Questions: e.Quiz.QuestionCount(),
	}
	switch e.State {
	case model.StatePlaceholder:
		s.Label = h.catalog.T(ctx, "NotLoaded")
	case model.StateFetching:
		s.Label = h.catalog.T(ctx, "Loading")
	default:
		s.Label = h.catalog.Tp(ctx, "QuestionsCount", s.Questions)
	}
	return s
}

func modeParam(r *http.Request) (model.Mode, bool) {
	return model.ParseMode(chi.URLParam(r, "mode"))
}

func indexParam(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	return i, err == nil && i >= 0
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown topic mode"})
		return
	}
	h.handleListMode(w, r, mode)
}

func (h *Handler) handleTopic(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	index, ok2 := indexParam(r)
	if !ok || !ok2 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "topic not found"})
		return
	}

	if mode == model.ModeCommunity {
		if _, err := h.repo.ResolveCommunity(r.Context(), index); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	e, err := h.repo.Topic(mode, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topicDetail{
		topicSummary: h.summary(r.Context(), index, e),
		Quiz:         exportQuiz(e.Quiz),
	})
}

func exportQuiz(q model.Quiz) model.QuizExport {
	exp := model.QuizExport{Sets: make([][]model.QuestionExport, len(q.Sets))}
	for i, set := range q.Sets {
		exp.Sets[i] = make([]model.QuestionExport, len(set))
		for j, question := range set {
			exp.Sets[i][j] = model.QuestionExport{
				Question: question.Text,
				Answers:  question.Answers,
				Correct:  question.Correct,
			}
		}
	}
	return exp
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	index, ok2 := indexParam(r)
	if !ok || !ok2 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "topic not found"})
		return
	}
	payload, err := h.repo.Export(mode, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, payload)
}

type saveRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.repo.SaveFromInput(r.Context(), req.Name, req.Content); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			writeJSON(w, http.StatusConflict, errorResponse{
				Error: h.catalog.Td(r.Context(), "DuplicateName", map[string]any{"Name": req.Name}),
			})
			return
		}
		h.writeError(w, r, err)
		return
	}
	slog.Info("topic saved via API", "name", req.Name)
	writeJSON(w, http.StatusCreated, messageResponse{
		Message: h.catalog.Td(r.Context(), "TopicSaved", map[string]any{"Name": req.Name}),
	})
}

type deleteRequest struct {
	Indices []int    `json:"indices"`
	Names   []string `json:"names"`
}

func (h *Handler) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	before := len(h.repo.List(model.ModeSaved))
	if err := h.repo.RemoveSavedAt(req.Indices...); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.repo.RemoveSaved(req.Names...); err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted := max(before-len(h.repo.List(model.ModeSaved)), 0)
	writeJSON(w, http.StatusOK, messageResponse{
		Message: h.catalog.Tp(r.Context(), "TopicsDeleted", deleted),
	})
}

func (h *Handler) handleDeleteSavedByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.repo.RemoveSaved(name); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.RefreshCommunity(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.handleListMode(w, r, model.ModeCommunity)
}

func (h *Handler) handleListMode(w http.ResponseWriter, r *http.Request, mode model.Mode) {
	entries := h.repo.List(mode)
	out := make([]topicSummary, len(entries))
	for i, e := range entries {
		out[i] = h.summary(r.Context(), i, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleParse validates posted content without saving it.
func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read body"})
		return
	}
	quiz, err := parser.Decode(string(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportQuiz(quiz))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := http.StatusInternalServerError
	msg := err.Error()

	var perr *parser.Error
	var rerr *remote.Error
	switch {
	case errors.Is(err, repository.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrEmptyName):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrIndexOutOfRange), errors.Is(err, repository.ErrUnknownMode):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrNotLoaded), errors.Is(err, repository.ErrStaleGeneration):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrNoCommunitySource):
		status = http.StatusServiceUnavailable
	case errors.As(err, &rerr):
		status = http.StatusBadGateway
		msg = h.catalog.T(ctx, "FetchFailed")
	case errors.As(err, &perr), errors.Is(err, parser.ErrEmptyOrUnrecognized), errors.Is(err, parser.ErrMalformedStructured):
		status = http.StatusUnprocessableEntity
		msg = h.catalog.Td(ctx, "InvalidContent", map[string]any{"Reason": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
