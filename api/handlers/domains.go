package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type RegisterDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

type DomainHandler struct {
	domainService interfaces.DomainService
}

func NewDomainHandler(domainService interfaces.DomainService) *DomainHandler {
	return &DomainHandler{domainService: domainService}
}

// RegisterDomain provisions a new domain across both providers
func (h *DomainHandler) RegisterDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RegisterDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if utils.GetOrganizationIDFromContext(ctx) == "" {
			tracing.TraceErr(span, errors.New("missing organization in context"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing organization in context"})
			return
		}

		var req RegisterDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		domain, err := h.domainService.CreateDomain(ctx, req.Domain)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"domain": domain})
	}
}

// ListDomains returns all domains for the caller's organization
func (h *DomainHandler) ListDomains() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListDomains")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domains, err := h.domainService.ListDomains(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

// GetDomain returns a single domain by id
func (h *DomainHandler) GetDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainService.GetDomain(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"domain": domain})
	}
}

// VerifyDomain re-checks both providers and settles the domain status
func (h *DomainHandler) VerifyDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "VerifyDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.domainService.VerifyDomain(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// SyncDomains reconciles all non-active domains with the forwarding provider
func (h *DomainHandler) SyncDomains() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncDomains")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		synced, err := h.domainService.SyncFromProvider(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"synced": synced})
	}
}

// DeleteDomain removes a domain locally and best-effort remotely
func (h *DomainHandler) DeleteDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeleteDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if err := h.domainService.DeleteDomain(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
