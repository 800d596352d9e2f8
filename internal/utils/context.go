package utils

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type CustomContext struct {
	AppSource      string
	OrganizationID string
	UserID         string
	UserEmail      string
	Roles          []string
}

var customContextKey = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource:      appSource,
		OrganizationID: c.GetString("OrganizationID"),
		UserID:         c.GetString("UserID"),
		UserEmail:      c.GetString("UserEmail"),
		Roles:          c.GetStringSlice("UserRoles"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetOrganizationIDFromContext(ctx context.Context) string {
	return GetContext(ctx).OrganizationID
}

func GetUserIDFromContext(ctx context.Context) string {
	return GetContext(ctx).UserID
}

func GetUserEmailFromContext(ctx context.Context) string {
	return GetContext(ctx).UserEmail
}

func SetOrganizationIDInContext(ctx context.Context, organizationID string) context.Context {
	customContext := GetContext(ctx)
	customContext.OrganizationID = organizationID
	return WithCustomContext(ctx, customContext)
}

func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	customContext := GetContext(ctx)
	customContext.UserID = userID
	return WithCustomContext(ctx, customContext)
}

func ValidateOrganization(ctx context.Context) error {
	if GetOrganizationIDFromContext(ctx) == "" {
		return errors.New("organization is missing")
	}
	return nil
}
