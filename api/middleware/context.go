package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const (
	HeaderOrganizationID = "X-ORGANIZATION-ID"
	HeaderUserID         = "X-USER-ID"
	HeaderUserEmail      = "X-USER-EMAIL"
)

// CustomContextMiddleware lifts the caller's organization and user identity
// from request headers into the request context.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("OrganizationID", strings.TrimSpace(c.GetHeader(HeaderOrganizationID)))
		c.Set("UserID", strings.TrimSpace(c.GetHeader(HeaderUserID)))
		c.Set("UserEmail", strings.TrimSpace(c.GetHeader(HeaderUserEmail)))

		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
