package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"conselho.org/internal/auth"
	"conselho.org/internal/infraction"
	"conselho.org/internal/stream"
)

type createRecordRequest struct {
	Establishment string                  `json:"establishment"`
	Description   string                  `json:"description"`
	Attachments   []infraction.Attachment `json:"attachments"`
	Minors        []infraction.Minor      `json:"minors"`
	Witnesses     []infraction.Witness    `json:"witnesses"`
}

type editRecordRequest struct {
	Establishment *string                  `json:"establishment"`
	Description   *string                  `json:"description"`
	Attachments   *[]infraction.Attachment `json:"attachments"`
	Minors        *[]infraction.Minor      `json:"minors"`
	Witnesses     *[]infraction.Witness    `json:"witnesses"`
}

type cancelRecordRequest struct {
	Justification string `json:"justification"`
}

type listRecordsResponse struct {
	Items []infraction.Record `json:"items"`
	AsOf  time.Time           `json:"as_of"`
}

func (a *API) handleRecordsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRecord(w, r)
	case http.MethodGet:
		a.listRecords(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, action := path, ""
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		id, action = path[:idx], strings.Trim(path[idx+1:], "/")
	}
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getRecord(w, r, id)
		case http.MethodPatch:
			a.editRecord(w, r, id)
		case http.MethodDelete:
			a.deleteRecord(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case "register":
		a.recordAction(w, r, id, "register")
	case "cancel":
		a.cancelRecord(w, r, id)
	case "conclude":
		a.recordAction(w, r, id, "conclude")
	case "audit":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.auditTrail(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(w, r)
	if !ok {
		return
	}
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.records.CreateRecord(r.Context(), infraction.CreateInput{
		Establishment: req.Establishment,
		Description:   req.Description,
		Attachments:   req.Attachments,
		Minors:        req.Minors,
		Witnesses:     req.Witnesses,
	}, actor)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}

	a.publish(rec, "create", actor)
	w.Header().Set("Location", "/v1/records/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := actorFromContext(w, r); !ok {
		return
	}
	rec, err := a.records.GetRecord(r.Context(), id)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromContext(w, r); !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after := strings.TrimSpace(r.URL.Query().Get("after"))

	items, err := a.records.ListRecords(r.Context(), limit, after)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listRecordsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) editRecord(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFromContext(w, r)
	if !ok {
		return
	}
	var req editRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.records.EditRecord(r.Context(), id, infraction.Update{
		Establishment: req.Establishment,
		Description:   req.Description,
		Attachments:   req.Attachments,
		Minors:        req.Minors,
		Witnesses:     req.Witnesses,
	}, actor)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	a.publish(rec, "edit", actor)
	writeJSON(w, http.StatusOK, rec)
}

// recordAction serves the bodyless lifecycle transitions.
func (a *API) recordAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	var (
		rec *infraction.Record
		err error
	)
	switch action {
	case "register":
		rec, err = a.records.RegisterRecord(r.Context(), id, actor)
	case "conclude":
		rec, err = a.records.ConcludeRecord(r.Context(), id, actor)
	}
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	a.publish(rec, action, actor)
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) cancelRecord(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFromContext(w, r)
	if !ok {
		return
	}
	var req cancelRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.records.CancelRecord(r.Context(), id, req.Justification, actor)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	a.publish(rec, "cancel", actor)
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFromContext(w, r)
	if !ok {
		return
	}
	if err := a.records.DeleteRecord(r.Context(), id, actor); err != nil {
		handleRecordError(w, r, err)
		return
	}
	if a.stream != nil {
		a.stream.Publish(stream.RecordEvent{
			RecordID:   id,
			Action:     "delete",
			ActorID:    actor.ID,
			OccurredAt: time.Now().UTC(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) auditTrail(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := actorFromContext(w, r); !ok {
		return
	}
	// The trail endpoint answers for any known record id, so a missing
	// record must still be distinguishable from an empty trail.
	if _, err := a.records.GetRecord(r.Context(), id); err != nil {
		handleRecordError(w, r, err)
		return
	}
	entries, err := a.records.AuditTrail(r.Context(), id)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) publish(rec *infraction.Record, action string, actor infraction.Actor) {
	if a.stream == nil || rec == nil {
		return
	}
	a.stream.Publish(stream.RecordEvent{
		RecordID:   rec.ID,
		Number:     rec.Number,
		Action:     action,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	})
}

// actorFromContext resolves the authenticated actor; replies 401 when absent.
func actorFromContext(w http.ResponseWriter, r *http.Request) (infraction.Actor, bool) {
	userID, okUser := auth.UserIDFromContext(r.Context())
	role, okRole := auth.RoleFromContext(r.Context())
	if !okUser || !okRole {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return infraction.Actor{}, false
	}
	return infraction.Actor{ID: userID, Role: infraction.Role(role)}, true
}

func handleRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, infraction.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, infraction.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, infraction.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, infraction.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
