package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"profilehub-api/internal/engine"
	"profilehub-api/internal/model"
	"profilehub-api/internal/service"
	"profilehub-api/pkg/apierror"
	"profilehub-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ProfileHandler handles profile command HTTP requests.
type ProfileHandler struct {
	profileService *service.ProfileService
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
	}
}

// commandRequest carries the routing fields shared by every command:
// which account, which profile kind, and the client's last-known revision.
type commandRequest struct {
	accountID      string
	profileID      model.ProfileID
	clientRevision int64
}

// parseCommandRequest extracts account id, profileId and rvn from the
// request. rvn defaults to -1, meaning the client has no cached state.
func parseCommandRequest(r *http.Request) (commandRequest, *apierror.Error) {
	req := commandRequest{
		accountID:      chi.URLParam(r, "account_id"),
		clientRevision: engine.ClientRevisionUnknown,
	}
	if req.accountID == "" {
		return req, apierror.BadRequest("account_id is required")
	}

	req.profileID = model.ProfileID(r.URL.Query().Get("profileId"))
	if req.profileID == "" {
		req.profileID = model.ProfileInventory
	}
	if !req.profileID.IsValid() {
		return req, apierror.BadRequest("unknown profileId: " + string(req.profileID))
	}

	if raw := r.URL.Query().Get("rvn"); raw != "" {
		rvn, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, apierror.BadRequest("rvn must be an integer")
		}
		req.clientRevision = rvn
	}

	return req, nil
}

// decodeBody decodes the request body into payload. An empty body is an
// error; commands that take no payload never call this.
func decodeBody(r *http.Request, payload interface{}) *apierror.Error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		if err == io.EOF {
			return apierror.BadRequest("request body is required")
		}
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}

// Command handles POST /api/v1/profile/{account_id}/command/{command}
func (h *ProfileHandler) Command(w http.ResponseWriter, r *http.Request) {
	req, apiErr := parseCommandRequest(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	command := chi.URLParam(r, "command")
	ctx := r.Context()

	var resp *model.CommandResponse
	var err error

	switch command {
	case "QueryProfile":
		resp, err = h.profileService.QueryProfile(ctx, req.accountID, req.profileID, req.clientRevision)

	case "MarkItemSeen":
		var payload service.MarkItemSeenPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.MarkItemSeen(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "EquipItem":
		var payload service.EquipItemPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.EquipItem(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "SetItemFavoriteStatus":
		var payload service.SetItemFavoriteStatusPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.SetItemFavoriteStatus(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "SetStat":
		var payload service.SetStatPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.SetStat(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "GrantCurrency":
		var payload service.CurrencyPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.GrantCurrency(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "RemoveCurrency":
		var payload service.CurrencyPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.RemoveCurrency(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "GrantItems":
		var payload service.GrantItemsPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.GrantItems(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "RemoveItems":
		var payload service.RemoveItemsPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.RemoveItems(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "PurchaseCatalogEntry":
		var payload service.PurchaseCatalogEntryPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.PurchaseCatalogEntry(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	case "GiftItems":
		var payload service.GiftItemsPayload
		if apiErr := decodeBody(r, &payload); apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		resp, err = h.profileService.GiftItems(ctx, req.accountID, req.profileID, req.clientRevision, payload)

	default:
		response.Error(w, apierror.NotFound("unknown command: "+command))
		return
	}

	if err != nil {
		response.Error(w, mapCommandError(err))
		return
	}

	// Command responses use the sync wire format directly, no envelope.
	response.Raw(w, http.StatusOK, resp)
}

// QueryProfile handles GET /api/v1/profile/{account_id}/query as a
// convenience alias for the QueryProfile command.
func (h *ProfileHandler) QueryProfile(w http.ResponseWriter, r *http.Request) {
	req, apiErr := parseCommandRequest(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	resp, err := h.profileService.QueryProfile(r.Context(), req.accountID, req.profileID, req.clientRevision)
	if err != nil {
		response.Error(w, mapCommandError(err))
		return
	}

	response.Raw(w, http.StatusOK, resp)
}

// mapCommandError translates engine and service errors into API errors.
// The engine produces no HTTP codes itself; this is the one place the
// taxonomy meets the wire.
func mapCommandError(err error) error {
	var itemErr *engine.ItemNotFoundError
	var partialErr *engine.PartialFailureError
	var persistErr *engine.PersistenceError

	switch {
	case errors.Is(err, engine.ErrProfileNotFound):
		return apierror.NotFound("profile not found")
	case errors.As(err, &itemErr):
		return apierror.ItemNotFound(itemErr.Error())
	case errors.As(err, &partialErr):
		// Distinct from a plain persistence failure: part of the command
		// is durable and a blind retry could duplicate grants.
		return apierror.PartialFailure(partialErr.Error())
	case errors.As(err, &persistErr):
		return apierror.InternalError("failed to persist profile update")
	case errors.Is(err, service.ErrInsufficientFunds):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, service.ErrInvalidPayload):
		return apierror.BadRequest(err.Error())
	default:
		return err
	}
}
