package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type SyncHandler struct {
	syncService         interfaces.SyncService
	credentialRepo      interfaces.CredentialRepository
	syncStateRepository interfaces.SyncStateRepository
}

func NewSyncHandler(
	syncService interfaces.SyncService,
	credentialRepo interfaces.CredentialRepository,
	syncStateRepository interfaces.SyncStateRepository,
) *SyncHandler {
	return &SyncHandler{
		syncService:         syncService,
		credentialRepo:      credentialRepo,
		syncStateRepository: syncStateRepository,
	}
}

// TriggerSync runs one on-demand sync for the caller's mailbox
func (h *SyncHandler) TriggerSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TriggerSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		if organizationID == "" {
			tracing.TraceErr(span, errors.New("missing organization in context"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing organization in context"})
			return
		}

		credential, err := h.credentialRepo.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceZohoImap)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if credential == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "mailbox credentials not configured"})
			return
		}

		report, err := h.syncService.SyncMailbox(ctx, organizationID, credential)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"fetched":    report.Fetched,
			"inserted":   report.Inserted,
			"duplicates": report.Duplicates,
			"failed":     report.Failed,
			"lastUid":    report.LastUID,
		})
	}
}

// GetSyncState returns the current watermark and status for the mailbox
func (h *SyncHandler) GetSyncState() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetSyncState")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		credential, err := h.credentialRepo.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceZohoImap)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if credential == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox credentials not configured"})
			return
		}

		state, err := h.syncStateRepository.GetByMailbox(ctx, organizationID, credential.Username, enum.ProviderServiceZohoImap)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sync has run yet"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"syncState": state})
	}
}

// ResetSync rewinds the watermark to zero so the next run replays the mailbox
func (h *SyncHandler) ResetSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ResetSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		credential, err := h.credentialRepo.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceZohoImap)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if credential == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox credentials not configured"})
			return
		}

		state, err := h.syncStateRepository.GetByMailbox(ctx, organizationID, credential.Username, enum.ProviderServiceZohoImap)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sync has run yet"})
			return
		}

		if err := h.syncStateRepository.Reset(ctx, state.ID); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"reset": true})
	}
}
