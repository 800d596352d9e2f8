package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
)

type CreateAliasRequest struct {
	Alias       string   `json:"alias" binding:"required"`
	Recipients  []string `json:"recipients" binding:"required"`
	Description string   `json:"description"`
}

type UpdateAliasRequest struct {
	Recipients  []string `json:"recipients" binding:"required"`
	Description string   `json:"description"`
	IsEnabled   *bool    `json:"isEnabled"`
}

type AliasHandler struct {
	aliasService interfaces.AliasService
}

func NewAliasHandler(aliasService interfaces.AliasService) *AliasHandler {
	return &AliasHandler{aliasService: aliasService}
}

func (h *AliasHandler) CreateAlias() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CreateAlias")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req CreateAliasRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		alias, err := h.aliasService.CreateAlias(ctx, c.Param("id"), req.Alias, req.Recipients, req.Description)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"alias": alias})
	}
}

func (h *AliasHandler) ListAliases() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListAliases")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		aliases, err := h.aliasService.ListAliases(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"aliases": aliases})
	}
}

func (h *AliasHandler) UpdateAlias() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "UpdateAlias")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req UpdateAliasRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		alias, err := h.aliasService.UpdateAlias(ctx, c.Param("id"), req.Recipients, req.Description, req.IsEnabled)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"alias": alias})
	}
}

func (h *AliasHandler) DeleteAlias() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeleteAlias")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if err := h.aliasService.DeleteAlias(ctx, c.Param("id")); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
