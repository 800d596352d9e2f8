package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type EmailHandler struct {
	emailRepository      interfaces.EmailRepository
	credentialRepository interfaces.CredentialRepository
	mailboxFactory       interfaces.MailboxClientFactory
}

func NewEmailHandler(emailRepository interfaces.EmailRepository, credentialRepository interfaces.CredentialRepository, mailboxFactory interfaces.MailboxClientFactory) *EmailHandler {
	return &EmailHandler{
		emailRepository:      emailRepository,
		credentialRepository: credentialRepository,
		mailboxFactory:       mailboxFactory,
	}
}

// ListEmails returns the organization's synced emails, newest first
func (h *EmailHandler) ListEmails() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListEmails")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		if organizationID == "" {
			tracing.TraceErr(span, errors.New("missing organization in context"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing organization in context"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > maxPageSize {
			limit = defaultPageSize
		}
		if offset < 0 {
			offset = 0
		}

		emails, total, err := h.emailRepository.ListByOrganization(ctx, organizationID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"emails": emails,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

func (h *EmailHandler) GetEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetEmail")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		email, err := h.emailRepository.GetByID(ctx, organizationID, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if email == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"email": email})
	}
}

type MarkReadRequest struct {
	Read bool `json:"read"`
}

func (h *EmailHandler) MarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "MarkEmailRead")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req MarkReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		if err := h.emailRepository.MarkRead(ctx, organizationID, c.Param("id"), req.Read); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		if req.Read {
			// best effort, the local flag is the source of truth
			if err := h.propagateSeenFlag(ctx, organizationID, c.Param("id")); err != nil {
				tracing.TraceErr(span, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"read": req.Read})
	}
}

// propagateSeenFlag pushes the \Seen flag back to the remote mailbox so the
// message does not come up unread elsewhere. Skipped when the message never
// came from a mailbox or the organization keeps no mailbox credentials.
func (h *EmailHandler) propagateSeenFlag(ctx context.Context, organizationID, emailID string) error {
	email, err := h.emailRepository.GetByID(ctx, organizationID, emailID)
	if err != nil {
		return err
	}
	if email == nil || email.ImapUID == 0 {
		return nil
	}

	credential, err := h.credentialRepository.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceZohoImap)
	if err != nil {
		return err
	}
	if credential == nil {
		return nil
	}

	client, err := h.mailboxFactory(ctx, credential.Username, credential.Password)
	if err != nil {
		return errors.Wrap(err, "failed to open mailbox connection")
	}
	defer client.Close()

	return client.MarkSeen(ctx, email.ImapUID)
}

type SetStarredRequest struct {
	Starred bool `json:"starred"`
}

func (h *EmailHandler) SetStarred() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SetEmailStarred")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req SetStarredRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		organizationID := utils.GetOrganizationIDFromContext(ctx)
		if err := h.emailRepository.SetStarred(ctx, organizationID, c.Param("id"), req.Starred); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"starred": req.Starred})
	}
}
