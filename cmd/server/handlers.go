package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/rules"
	"github.com/liamcoop/sqlgen/workspace"
)

type ctxKey struct{}

// withWorkspace resolves the caller's workspace from the owner header
func (s *Server) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			owner = s.cfg.DefaultOwner
		}

		ws, err := s.manager.Get(owner)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid owner", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ws)))
	})
}

func workspaceFrom(r *http.Request) *workspace.Workspace {
	return r.Context().Value(ctxKey{}).(*workspace.Workspace)
}

// pathID parses the {id} URL parameter, answering 400 when it is not a number
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, ok := rules.ParseID(raw)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid id", errors.New(raw))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// Rule handlers

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req workspace.RuleInput
	if !decodeBody(w, r, &req) {
		return
	}

	rule, err := workspaceFrom(r).CreateRule(req)
	if err != nil {
		respondFailure(w, r, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: "rule created", Rule: rule})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := workspaceFrom(r).ListRules(r.URL.Query().Get("category"))
	if err != nil {
		respondFailure(w, r, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleRuleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := workspaceFrom(r).RuleCategories()
	if err != nil {
		respondFailure(w, r, "failed to list rule categories", err)
		return
	}
	respondJSON(w, http.StatusOK, nonEmpty(cats))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, err := workspaceFrom(r).GetRule(id)
	if err != nil {
		respondFailure(w, r, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req workspace.RuleInput
	if !decodeBody(w, r, &req) {
		return
	}

	rule, err := workspaceFrom(r).UpdateRule(id, req)
	if err != nil {
		respondFailure(w, r, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "rule updated", Rule: rule})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := workspaceFrom(r).DeleteRule(id); err != nil {
		respondFailure(w, r, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, err := workspaceFrom(r).CopyRule(id)
	if err != nil {
		respondFailure(w, r, "failed to copy rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: "rule copied", Rule: rule})
}

func (s *Server) handleSetRuleEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rule, err := workspaceFrom(r).SetRuleEnabled(id, enabled)
		if err != nil {
			respondFailure(w, r, "failed to update rule", err)
			return
		}
		respondJSON(w, http.StatusOK, MessageResponse{Message: toggleMessage("rule", enabled), Rule: rule})
	}
}

// Template handlers

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req workspace.TemplateInput
	if !decodeBody(w, r, &req) {
		return
	}

	tmpl, err := workspaceFrom(r).CreateTemplate(req)
	if err != nil {
		respondFailure(w, r, "failed to create template", err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: "template created", Template: tmpl})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("onlyEnabled") == "true"
	list, err := workspaceFrom(r).ListTemplates(onlyEnabled)
	if err != nil {
		respondFailure(w, r, "failed to list templates", err)
		return
	}
	respondJSON(w, http.StatusOK, nonEmpty(list))
}

func (s *Server) handleTemplateCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := workspaceFrom(r).TemplateCategories()
	if err != nil {
		respondFailure(w, r, "failed to list template categories", err)
		return
	}
	respondJSON(w, http.StatusOK, nonEmpty(cats))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tmpl, err := workspaceFrom(r).GetTemplate(id)
	if err != nil {
		respondFailure(w, r, "template not found", err)
		return
	}
	respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req workspace.TemplateInput
	if !decodeBody(w, r, &req) {
		return
	}

	tmpl, err := workspaceFrom(r).UpdateTemplate(id, req)
	if err != nil {
		respondFailure(w, r, "failed to update template", err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "template updated", Template: tmpl})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := workspaceFrom(r).DeleteTemplate(id); err != nil {
		respondFailure(w, r, "failed to delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tmpl, err := workspaceFrom(r).CopyTemplate(id)
	if err != nil {
		respondFailure(w, r, "failed to copy template", err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: "template copied", Template: tmpl})
}

func (s *Server) handleSetTemplateEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		tmpl, err := workspaceFrom(r).SetTemplateEnabled(id, enabled)
		if err != nil {
			respondFailure(w, r, "failed to update template", err)
			return
		}
		respondJSON(w, http.StatusOK, MessageResponse{Message: toggleMessage("template", enabled), Template: tmpl})
	}
}

func (s *Server) handleExportTemplates(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	out, err := workspaceFrom(r).ExportTemplates(ids)
	if err != nil {
		respondFailure(w, r, "failed to export templates", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	var req ImportTemplatesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := workspaceFrom(r).ImportTemplates(req.Templates)
	if err != nil {
		respondFailure(w, r, "invalid template import", err)
		return
	}
	respondJSON(w, http.StatusOK, ImportTemplatesResponse{
		Message:      "templates imported",
		ImportResult: result,
	})
}

// Dataset handlers

func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "file too large", err)
			return
		}
		respondError(w, r, http.StatusBadRequest, "file is required", err)
		return
	}
	defer file.Close()

	ds, err := workspaceFrom(r).UploadDataset(workspace.Upload{
		Name:     header.Filename,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		respondFailure(w, r, "failed to upload file", err)
		return
	}

	respondJSON(w, http.StatusCreated, UploadResponse{
		Message: "file uploaded",
		File:    DatasetSummary{ID: ds.ID, OriginalName: ds.OriginalName, Size: ds.Size},
	})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ds, err := workspaceFrom(r).GetDataset(id)
	if err != nil {
		respondFailure(w, r, "file not found", err)
		return
	}
	respondJSON(w, http.StatusOK, DatasetResponse{
		DatasetSummary: DatasetSummary{ID: ds.ID, OriginalName: ds.OriginalName, Size: ds.Size},
		Data:           DatasetContent{Headers: ds.Headers, Data: ds.Rows},
	})
}

func (s *Server) handlePreviewDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	preview, err := workspaceFrom(r).PreviewDataset(id)
	if err != nil {
		respondFailure(w, r, "failed to preview file", err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// Generation handlers

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	datasetID, ok := rules.ParseID(rules.Stringify(req.DatasetID))
	if req.DatasetID == nil || !ok {
		respondError(w, r, http.StatusBadRequest, "datasetId is required", nil)
		return
	}

	gen, err := workspaceFrom(r).Generate(datasetID, req.ruleIDs())
	if err != nil {
		respondFailure(w, r, "SQL generation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, gen)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	list, err := workspaceFrom(r).ListHistory()
	if err != nil {
		respondFailure(w, r, "failed to list history", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := workspaceFrom(r).HistoryDetail(chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, "history record not found", err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	log := logger.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorHttp5xx()
		log.Error(message, "status", status, "error", err)
	} else {
		logger.WarnHttp4xx(status)
		log.Debug(message, "status", status, "error", err)
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// respondFailure maps domain errors to a status code
func respondFailure(w http.ResponseWriter, r *http.Request, message string, err error) {
	respondError(w, r, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrInvalidData),
		errors.Is(err, rules.ErrNoRulesAvailable),
		errors.Is(err, rules.ErrNoRulesMatched):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toggleMessage(kind string, enabled bool) string {
	if enabled {
		return kind + " enabled"
	}
	return kind + " disabled"
}

func nonEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
