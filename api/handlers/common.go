package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	er "github.com/noyaclicks-jpg/crmhost/internal/errors"
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

// respondError maps service errors onto HTTP statuses. Provider errors keep
// their classification; anything unmapped is a 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, er.ErrDomainNotFound),
		errors.Is(err, er.ErrAliasNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, er.ErrDomainExists),
		errors.Is(err, er.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, er.ErrCredentialsMissing),
		errors.Is(err, er.ErrRecipientsRequired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case gateway.IsAuth(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider rejected the stored credential"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
