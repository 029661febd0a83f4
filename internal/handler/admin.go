package handler

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"profilehub-api/internal/model"
	"profilehub-api/internal/repository"
	"profilehub-api/internal/service"
	"profilehub-api/pkg/apierror"
	"profilehub-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AdminHandler handles admin HTTP requests: runtime stats plus the manual
// repair endpoints ops uses to reconcile a profile after a partial
// multi-profile failure. Repair writes go straight to the repository's
// partial-write methods and do not advance revisions; affected clients
// resync via the full-update path on their next query.
type AdminHandler struct {
	profileRepo    repository.ProfileRepository
	profileService *service.ProfileService
	dbType         string
	startTime      time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	profileRepo repository.ProfileRepository,
	profileService *service.ProfileService,
	dbType string,
) *AdminHandler {
	return &AdminHandler{
		profileRepo:    profileRepo,
		profileService: profileService,
		dbType:         dbType,
		startTime:      time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Profile database stats
	if h.profileRepo != nil {
		repoStats, err := h.profileRepo.GetStats(ctx)
		if err == nil {
			repoStats["status"] = "connected"
			stats["profiles_db"] = repoStats
		} else {
			stats["profiles_db"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["profiles_db"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ProvisionAccount handles POST /api/v1/admin/accounts/{account_id}/provision
func (h *AdminHandler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	created, err := h.profileService.ProvisionAccount(r.Context(), accountID)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to provision account"))
		return
	}

	response.OK(w, map[string]interface{}{
		"account_id": accountID,
		"created":    created,
	})
}

func adminProfileParams(r *http.Request) (string, model.ProfileID, *apierror.Error) {
	accountID := chi.URLParam(r, "account_id")
	profileID := model.ProfileID(chi.URLParam(r, "profile_id"))
	if accountID == "" {
		return "", "", apierror.BadRequest("account_id is required")
	}
	if !profileID.IsValid() {
		return "", "", apierror.BadRequest("unknown profile_id: " + string(profileID))
	}
	return accountID, profileID, nil
}

// PatchStats handles PATCH /api/v1/admin/accounts/{account_id}/profiles/{profile_id}/stats
func (h *AdminHandler) PatchStats(w http.ResponseWriter, r *http.Request) {
	accountID, profileID, apiErr := adminProfileParams(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	var attrs map[string]interface{}
	if apiErr := decodeBody(r, &attrs); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if len(attrs) == 0 {
		response.Error(w, apierror.BadRequest("at least one attribute is required"))
		return
	}

	if err := h.profileRepo.UpdateProfileStats(r.Context(), accountID, profileID, attrs); err != nil {
		response.Error(w, mapAdminRepoError(err))
		return
	}

	response.OK(w, map[string]string{"status": "patched"})
}

// PutItem handles PUT /api/v1/admin/accounts/{account_id}/profiles/{profile_id}/items/{item_id}
func (h *AdminHandler) PutItem(w http.ResponseWriter, r *http.Request) {
	accountID, profileID, apiErr := adminProfileParams(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		response.Error(w, apierror.BadRequest("item_id is required"))
		return
	}

	var item model.Item
	if apiErr := decodeBody(r, &item); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if item.TemplateID == "" {
		response.Error(w, apierror.BadRequest("templateId is required"))
		return
	}

	if err := h.profileRepo.UpdateItemInProfile(r.Context(), accountID, profileID, itemID, &item); err != nil {
		response.Error(w, mapAdminRepoError(err))
		return
	}

	response.OK(w, map[string]string{"status": "updated", "item_id": itemID})
}

// DeleteItem handles DELETE /api/v1/admin/accounts/{account_id}/profiles/{profile_id}/items/{item_id}
func (h *AdminHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	accountID, profileID, apiErr := adminProfileParams(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		response.Error(w, apierror.BadRequest("item_id is required"))
		return
	}

	if err := h.profileRepo.RemoveItemFromProfile(r.Context(), accountID, profileID, itemID); err != nil {
		response.Error(w, mapAdminRepoError(err))
		return
	}

	response.OK(w, map[string]string{"status": "removed", "item_id": itemID})
}

func mapAdminRepoError(err error) error {
	if errors.Is(err, repository.ErrProfileNotFound) {
		return apierror.NotFound("profile not found")
	}
	return apierror.InternalError("profile repair failed")
}
