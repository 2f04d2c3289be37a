package httptransport

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"riftgate/internal/authn"
	"riftgate/internal/ledger"
	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
	"riftgate/pkg/platform/httputil"
	"riftgate/pkg/requestcontext"
)

// AuthnService is the pipeline surface the transport depends on.
type AuthnService interface {
	Authenticate(ctx context.Context, req authn.Request) (*authn.Session, error)
	GetAuditRange(ctx context.Context, from, to uint64) ([]ledger.Record, error)
	Quarantine() *authn.Quarantine
}

type Handler struct {
	service AuthnService
	logger  *slog.Logger
}

func NewHandler(service AuthnService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// HandleAuthenticate handles POST /v1/authenticate.
func (h *Handler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[AuthenticateRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	profileID, err := id.ParseProfileID(req.ProfileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	domainReq := authn.Request{
		Profile:     authn.Profile{ID: profileID, Segments: req.Segments},
		Subject:     req.Subject,
		Secret:      req.Secret,
		DeviceKnown: requestcontext.DeviceName(ctx) != "",
	}
	if parsed, err := id.ParseRequestID(requestID); err == nil {
		domainReq.RequestID = parsed
	}

	session, err := h.service.Authenticate(ctx, domainReq)
	if err != nil {
		var denial *authn.Denial
		if errors.As(err, &denial) {
			httputil.WriteJSON(w, denialStatus(denial.Reason), FromDenial(denial))
			return
		}
		h.logger.ErrorContext(ctx, "authentication failed",
			"request_id", requestID,
			"profile_id", req.ProfileID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "authentication handled",
		"request_id", requestID,
		"profile_id", req.ProfileID,
		"grade", session.Grade.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleAuditRange handles GET /v1/audit/records?from=&to=.
func (h *Handler) HandleAuditRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, err := queryUint(r, "from", 0)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from must be a non-negative integer"))
		return
	}
	to, err := queryUint(r, "to", from+defaultAuditPage)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to must be a non-negative integer"))
		return
	}
	if to <= from {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to must be greater than from"))
		return
	}
	if to-from > maxAuditPage {
		to = from + maxAuditPage
	}

	records, err := h.service.GetAuditRange(ctx, from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, AuditRangeResponse{From: from, To: to, Records: out})
}

// HandleQuarantineList handles GET /v1/quarantine.
func (h *Handler) HandleQuarantineList(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Quarantine().List(r.Context())
	out := make([]QuarantineEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, QuarantineEntryResponse{
			ProfileID:     e.ProfileID.String(),
			Reason:        e.Reason,
			QuarantinedAt: e.QuarantinedAt,
			SourceRequest: e.SourceRequest,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// HandleQuarantineRelease handles DELETE /v1/quarantine/{profileID}.
func (h *Handler) HandleQuarantineRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, err := id.ParseProfileID(chi.URLParam(r, "profileID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !h.service.Quarantine().Release(ctx, profileID) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "profile is not quarantined"))
		return
	}
	h.logger.InfoContext(ctx, "quarantine released",
		"request_id", requestcontext.RequestID(ctx),
		"profile_id", profileID.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

const (
	defaultAuditPage = 100
	maxAuditPage     = 1000
)

func queryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// denialStatus maps a denial reason to an HTTP status. Refusals are 4xx;
// infrastructure failures surface as 503 so callers know to retry later.
func denialStatus(reason authn.DeniedReason) int {
	switch reason {
	case authn.DeniedInvalidInput:
		return http.StatusBadRequest
	case authn.DeniedCredentials:
		return http.StatusUnauthorized
	case authn.DeniedResource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}
