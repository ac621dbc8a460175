package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelterhub.org/internal/audit"
	"shelterhub.org/internal/obs"
	"shelterhub.org/internal/shelter"
	"shelterhub.org/internal/stream"
)

type createAnimalRequest struct {
	GroupID     int64      `json:"group_id"`
	Name        string     `json:"name"`
	Species     string     `json:"species"`
	Breed       string     `json:"breed"`
	Age         int        `json:"age"`
	Description string     `json:"description"`
	ImageRef    string     `json:"image_ref"`
	Status      string     `json:"status"`
	ArrivalDate *time.Time `json:"arrival_date"`
}

type updateAnimalRequest struct {
	Name            *string    `json:"name"`
	Species         *string    `json:"species"`
	Breed           *string    `json:"breed"`
	Age             *int       `json:"age"`
	Description     *string    `json:"description"`
	ImageRef        *string    `json:"image_ref"`
	GroupID         *int64     `json:"group_id"`
	ArrivalDate     *time.Time `json:"arrival_date"`
	Status          *string    `json:"status"`
	QuarantineStart *time.Time `json:"quarantine_start"`
}

type bulkUpdateRequest struct {
	AnimalIDs []int64 `json:"animal_ids"`
	GroupID   *int64  `json:"group_id"`
	Status    *string `json:"status"`
}

type bulkUpdateResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type groupPatchRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type memberRequest struct {
	UserID       string `json:"user_id"`
	IsGroupAdmin bool   `json:"is_group_admin"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type tagRequest struct {
	Name string `json:"name"`
}

// --- animals ---

func (a *API) handleAnimalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAnimals(w, r)
	case http.MethodPost:
		a.createAnimal(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAnimalResource(w http.ResponseWriter, r *http.Request) {
	seg := splitPath(r.URL.Path, "/v1/animals/")
	if len(seg) == 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseInt(seg[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "animal not found")
		return
	}

	switch {
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getAnimal(w, r, id)
		case http.MethodPut, http.MethodPatch:
			a.updateAnimal(w, r, id)
		case http.MethodDelete:
			a.deleteAnimal(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
		}
	case len(seg) == 2 && seg[1] == "comments":
		switch r.Method {
		case http.MethodGet:
			a.listComments(w, r, id)
		case http.MethodPost:
			a.addComment(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(seg) == 2 && seg[1] == "tags":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.tagAnimal(w, r, id)
	case len(seg) == 3 && seg[1] == "tags":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		tagID, err := strconv.ParseInt(seg[2], 10, 64)
		if err != nil || tagID <= 0 {
			writeError(w, r, http.StatusNotFound, "tag not found")
			return
		}
		a.untagAnimal(w, r, id, tagID)
	case len(seg) == 2 && seg[1] == "quarantine-end":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.quarantineEnd(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createAnimal(w http.ResponseWriter, r *http.Request) {
	var req createAnimalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.svc.CreateAnimal(r.Context(), caller(r), shelter.CreateAnimalInput{
		GroupID:     req.GroupID,
		Name:        req.Name,
		Species:     req.Species,
		Breed:       req.Breed,
		Age:         req.Age,
		Description: req.Description,
		ImageRef:    req.ImageRef,
		Status:      req.Status,
		ArrivalDate: req.ArrivalDate,
	})
	if err != nil {
		handleShelterError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventAnimalCreate, map[string]any{
		"animal_id": view.ID,
		"group_id":  view.GroupID,
	})
	w.Header().Set("Location", "/v1/animals/"+strconv.FormatInt(view.ID, 10))
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) getAnimal(w http.ResponseWriter, r *http.Request, id int64) {
	view, err := a.svc.GetAnimal(r.Context(), caller(r), id)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) listAnimals(w http.ResponseWriter, r *http.Request) {
	filter, err := animalFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	views, err := a.svc.ListAnimals(r.Context(), caller(r), filter)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) updateAnimal(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateAnimalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.UpdateAnimal(r.Context(), caller(r), id, shelter.UpdateAnimalInput{
		Name:            req.Name,
		Species:         req.Species,
		Breed:           req.Breed,
		Age:             req.Age,
		Description:     req.Description,
		ImageRef:        req.ImageRef,
		GroupID:         req.GroupID,
		ArrivalDate:     req.ArrivalDate,
		Status:          req.Status,
		QuarantineStart: req.QuarantineStart,
	})
	if err != nil {
		handleShelterError(w, r, err)
		return
	}

	if res.StatusChanged {
		obs.ObserveStatusTransition(res.View.Status)
		if a.stream != nil {
			a.stream.Publish(stream.StatusEvent{
				AnimalID: res.View.ID,
				GroupID:  res.View.GroupID,
				From:     res.PreviousState,
				To:       res.View.Status,
			})
		}
	}
	_ = audit.LogEvent(r.Context(), audit.EventAnimalUpdate, map[string]any{
		"animal_id":      id,
		"status_changed": res.StatusChanged,
	})
	writeJSON(w, http.StatusOK, res.View)
}

func (a *API) deleteAnimal(w http.ResponseWriter, r *http.Request, id int64) {
	if err := a.svc.DeleteAnimal(r.Context(), caller(r), id); err != nil {
		handleShelterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAnimalDelete, map[string]any{
		"animal_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req bulkUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	count, err := a.svc.BulkUpdate(r.Context(), caller(r), shelter.BulkUpdateRequest{
		AnimalIDs: req.AnimalIDs,
		GroupID:   req.GroupID,
		Status:    req.Status,
	})
	if err != nil {
		handleShelterError(w, r, err)
		return
	}

	obs.ObserveBulkUpdate()
	if a.stream != nil && req.Status != nil {
		evt := stream.StatusEvent{To: *req.Status, Count: count}
		if req.GroupID != nil {
			evt.GroupID = *req.GroupID
		}
		a.stream.Publish(evt)
	}
	fields := map[string]any{
		"animal_ids": req.AnimalIDs,
		"count":      count,
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.GroupID != nil {
		fields["group_id"] = *req.GroupID
	}
	_ = audit.LogEvent(r.Context(), audit.EventBulkUpdate, fields)

	writeJSON(w, http.StatusOK, bulkUpdateResponse{Message: "animals updated", Count: count})
}

func (a *API) quarantineEnd(w http.ResponseWriter, r *http.Request, id int64) {
	view, err := a.svc.GetAnimal(r.Context(), caller(r), id)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	if view.QuarantineStart == nil {
		writeError(w, r, http.StatusBadRequest, "animal is not in quarantine")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"animal_id":           view.ID,
		"quarantine_start":    view.QuarantineStart,
		"quarantine_end_date": view.QuarantineEndDate,
	})
}

// --- CSV ---

func (a *API) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter, err := animalFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="animals.csv"`)
	if err := a.svc.ExportAnimalsCSV(r.Context(), caller(r), filter, w); err != nil {
		// Headers may already be out; log and stop.
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "csv_export_failed",
			"error": err.Error(),
		})
	}
}

func (a *API) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	if err != nil || groupID <= 0 {
		writeError(w, r, http.StatusBadRequest, "group_id query parameter is required")
		return
	}
	created, err := a.svc.ImportAnimalsCSV(r.Context(), caller(r), groupID, r.Body)
	if err != nil {
		// A non-zero count means the file validated but a create failed
		// partway; tell the caller how far the import got.
		if created > 0 {
			writeError(w, r, http.StatusInternalServerError,
				fmt.Sprintf("import stopped after %d animals: internal error", created))
			return
		}
		handleShelterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAnimalImport, map[string]any{
		"group_id": groupID,
		"created":  created,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"created": created})
}

// --- groups ---

func (a *API) handleGroupsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.svc.ListGroups(r.Context(), caller(r))
		if err != nil {
			handleShelterError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": groups})
	case http.MethodPost:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.svc.CreateGroup(r.Context(), caller(r), req.Name, req.Description)
		if err != nil {
			handleShelterError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventGroupCreate, map[string]any{
			"group_id": g.ID,
			"name":     g.Name,
		})
		w.Header().Set("Location", "/v1/groups/"+strconv.FormatInt(g.ID, 10))
		writeJSON(w, http.StatusCreated, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	seg := splitPath(r.URL.Path, "/v1/groups/")
	if len(seg) == 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseInt(seg[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "group not found")
		return
	}

	switch {
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			g, err := a.svc.GetGroup(r.Context(), caller(r), id)
			if err != nil {
				handleShelterError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, g)
		case http.MethodPatch:
			var req groupPatchRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			g, err := a.svc.UpdateGroup(r.Context(), caller(r), id, shelter.GroupUpdate{
				Name:        req.Name,
				Description: req.Description,
			})
			if err != nil {
				handleShelterError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, g)
		case http.MethodDelete:
			if err := a.svc.DeleteGroup(r.Context(), caller(r), id); err != nil {
				handleShelterError(w, r, err)
				return
			}
			_ = audit.LogEvent(r.Context(), audit.EventGroupDelete, map[string]any{
				"group_id": id,
			})
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(seg) == 2 && seg[1] == "members":
		switch r.Method {
		case http.MethodGet:
			members, err := a.svc.ListMembers(r.Context(), caller(r), id)
			if err != nil {
				handleShelterError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": members})
		case http.MethodPost:
			var req memberRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if strings.TrimSpace(req.UserID) == "" {
				writeError(w, r, http.StatusBadRequest, "user_id is required")
				return
			}
			if err := a.svc.AddMember(r.Context(), caller(r), id, req.UserID, req.IsGroupAdmin); err != nil {
				handleShelterError(w, r, err)
				return
			}
			_ = audit.LogEvent(r.Context(), audit.EventMemberAdd, map[string]any{
				"group_id":       id,
				"member_user_id": req.UserID,
				"is_group_admin": req.IsGroupAdmin,
			})
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(seg) == 3 && seg[1] == "members":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.svc.RemoveMember(r.Context(), caller(r), id, seg[2]); err != nil {
			handleShelterError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventMemberRemove, map[string]any{
			"group_id":       id,
			"member_user_id": seg[2],
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// --- comments and tags ---

func (a *API) addComment(w http.ResponseWriter, r *http.Request, animalID int64) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.svc.AddComment(r.Context(), caller(r), animalID, req.Body)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request, animalID int64) {
	comments, err := a.svc.ListComments(r.Context(), caller(r), animalID)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	if comments == nil {
		comments = []*shelter.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": comments})
}

func (a *API) tagAnimal(w http.ResponseWriter, r *http.Request, animalID int64) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tag, err := a.svc.TagAnimal(r.Context(), caller(r), animalID, req.Name)
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (a *API) untagAnimal(w http.ResponseWriter, r *http.Request, animalID, tagID int64) {
	if err := a.svc.UntagAnimal(r.Context(), caller(r), animalID, tagID); err != nil {
		handleShelterError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func animalFilterFromQuery(r *http.Request) (shelter.AnimalFilter, error) {
	var filter shelter.AnimalFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("group_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, errors.New("group_id must be a positive integer")
		}
		filter.GroupID = &id
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter.Status = &raw
	}
	return filter, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleShelterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shelter.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="shelterhub"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, shelter.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, shelter.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, shelter.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
