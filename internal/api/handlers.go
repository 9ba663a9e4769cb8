// Package api exposes HTTP handlers for the check-in service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"example.com/checkin/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/scan/", h.scanByBadge)
	mux.HandleFunc("/scans", h.scanFrequencies)
	mux.HandleFunc("/users", h.listUsers)
	mux.HandleFunc("/users/", h.userByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) scanByBadge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	badgeCode := strings.TrimPrefix(r.URL.Path, "/scan/")
	if badgeCode == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing badge code")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing or invalid JSON body.")
		return
	}

	record, err := h.service.RecordScan(r.Context(), badgeCode, req.ActivityName, req.ActivityCategory)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found with the provided badge code.")
			return
		}
		if domain.IsValidation(err) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "An error occurred while adding the scan.")
		return
	}

	writeJSON(w, http.StatusCreated, ScanResponse{
		UserID:           record.UserID,
		UserEmail:        record.UserEmail,
		ActivityName:     record.ActivityName,
		ScannedAt:        record.ScannedAt,
		ActivityCategory: record.ActivityCategory,
	})
}

func (h *Handler) scanFrequencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	filter := domain.FrequencyFilter{Category: r.URL.Query().Get("activity_category")}
	if raw := r.URL.Query().Get("min_frequency"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.MinFrequency = parsed
		}
	}
	if raw := r.URL.Query().Get("max_frequency"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.MaxFrequency = &parsed
		}
	}

	frequencies, err := h.service.ActivityFrequencies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "An error occurred while aggregating scans.")
		return
	}

	views := make([]FrequencyView, 0, len(frequencies))
	for _, freq := range frequencies {
		views = append(views, FrequencyView{
			ActivityName:     freq.ActivityName,
			ActivityCategory: freq.ActivityCategory,
			Frequency:        freq.Frequency,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	details, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "An error occurred while listing users.")
		return
	}

	views := make([]UserView, 0, len(details))
	for _, detail := range details {
		views = append(views, toUserView(detail))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/users/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "User not found.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getUser(w, r, id)
	case http.MethodPut:
		h.updateUser(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request, id int64) {
	detail, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "An error occurred while fetching the user.")
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*detail))
}

var allowedUpdateFields = map[string]struct{}{
	"name":       {},
	"phone":      {},
	"email":      {},
	"badge_code": {},
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request, id int64) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing or invalid JSON body.")
		return
	}

	unexpected := make([]string, 0)
	for key := range fields {
		if _, ok := allowedUpdateFields[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		writeError(w, http.StatusBadRequest, "validation_failed", "Unexpected fields: "+strings.Join(unexpected, ", "))
		return
	}

	input, err := buildUpdateInput(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing or invalid JSON body.")
		return
	}

	detail, err := h.service.UpdateUser(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found.")
			return
		}
		if domain.IsValidation(err) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "An error occurred while updating the user.")
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*detail))
}

// buildUpdateInput maps the raw fields onto the update input. A JSON null
// for name, phone or email is treated as absent; a null badge_code clears
// the badge.
func buildUpdateInput(fields map[string]json.RawMessage) (domain.UpdateUserInput, error) {
	var input domain.UpdateUserInput
	for key, raw := range fields {
		var value *string
		if err := json.Unmarshal(raw, &value); err != nil {
			return domain.UpdateUserInput{}, err
		}
		switch key {
		case "name":
			input.Name = value
		case "phone":
			input.Phone = value
		case "email":
			input.Email = value
		case "badge_code":
			input.BadgeCode = value
			input.BadgeCodeSet = true
		}
	}
	return input, nil
}

// ScanRequest is the payload for PUT /scan/{badge_code}.
type ScanRequest struct {
	ActivityName     string `json:"activity_name"`
	ActivityCategory string `json:"activity_category"`
}

// ScanResponse describes the recorded check-in.
type ScanResponse struct {
	UserID           int64     `json:"user_id"`
	UserEmail        string    `json:"user_email"`
	ActivityName     string    `json:"activity_name"`
	ScannedAt        time.Time `json:"scanned_at"`
	ActivityCategory string    `json:"activity_category"`
}

// FrequencyView is one row of GET /scans.
type FrequencyView struct {
	ActivityName     string `json:"activity_name"`
	ActivityCategory string `json:"activity_category"`
	Frequency        int64  `json:"frequency"`
}

// UserView exposes a user with their nested scan history.
type UserView struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	BadgeCode *string    `json:"badge_code"`
	UpdatedAt time.Time  `json:"updated_at"`
	Scans     []ScanView `json:"scans"`
}

// ScanView is one entry of a user's nested scan history.
type ScanView struct {
	ActivityName     string    `json:"activity_name"`
	ScannedAt        time.Time `json:"scanned_at"`
	ActivityCategory string    `json:"activity_category"`
}

func toUserView(detail domain.UserDetail) UserView {
	scans := make([]ScanView, 0, len(detail.Scans))
	for _, scan := range detail.Scans {
		scans = append(scans, ScanView{
			ActivityName:     scan.ActivityName,
			ScannedAt:        scan.ScannedAt,
			ActivityCategory: scan.ActivityCategory,
		})
	}
	return UserView{
		ID:        detail.ID,
		Email:     detail.Email,
		Name:      detail.Name,
		Phone:     detail.Phone,
		BadgeCode: detail.BadgeCode,
		UpdatedAt: detail.UpdatedAt,
		Scans:     scans,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
