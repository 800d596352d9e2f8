package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type UpsertCredentialRequest struct {
	APIToken string `json:"apiToken"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CredentialHandler struct {
	credentialRepository interfaces.CredentialRepository
	dns                  interfaces.DNSProviderService
	forwarding           interfaces.ForwardingProviderService
}

func NewCredentialHandler(
	credentialRepository interfaces.CredentialRepository,
	dns interfaces.DNSProviderService,
	forwarding interfaces.ForwardingProviderService,
) *CredentialHandler {
	return &CredentialHandler{
		credentialRepository: credentialRepository,
		dns:                  dns,
		forwarding:           forwarding,
	}
}

func (h *CredentialHandler) resolveService(c *gin.Context) (enum.ProviderService, bool) {
	service := enum.DecodeProviderService(c.Param("service"))
	if service == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider service"})
		return "", false
	}
	return service, true
}

// UpsertCredential stores or rotates the organization's credential for one
// provider. Tokens are never returned back out.
func (h *CredentialHandler) UpsertCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "UpsertCredential")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		if organizationID == "" {
			tracing.TraceErr(span, errors.New("missing organization in context"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing organization in context"})
			return
		}

		service, ok := h.resolveService(c)
		if !ok {
			return
		}

		var req UpsertCredentialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.APIToken == "" && (req.Username == "" || req.Password == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "either apiToken or username and password are required"})
			return
		}

		credential := &models.ProviderCredential{
			OrganizationID: organizationID,
			Service:        service,
			APIToken:       req.APIToken,
			Username:       req.Username,
			Password:       req.Password,
		}
		if err := h.credentialRepository.Upsert(ctx, credential); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"service": service})
	}
}

// TestCredential performs a live connection test against the provider
func (h *CredentialHandler) TestCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TestCredential")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		service, ok := h.resolveService(c)
		if !ok {
			return
		}

		credential, err := h.credentialRepository.GetByOrgAndService(ctx, organizationID, service)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if credential == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not configured"})
			return
		}

		switch service {
		case enum.ProviderServiceNetlify:
			err = h.dns.TestConnection(ctx, credential.APIToken)
		case enum.ProviderServiceForwardEmail:
			err = h.forwarding.TestConnection(ctx, credential.APIToken)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "connection test not supported for this service"})
			return
		}
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *CredentialHandler) DeleteCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeleteCredential")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		service, ok := h.resolveService(c)
		if !ok {
			return
		}

		if err := h.credentialRepository.Delete(ctx, organizationID, service); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
