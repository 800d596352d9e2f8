package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrOrganizationMissing = errors.New("organization is missing")
	ErrConnectionTimeout   = errors.New("connection timeout")

	// credential errors
	ErrCredentialsMissing = errors.New("provider credentials not configured")

	// domain errors
	ErrDomainNotFound      = errors.New("domain not found")
	ErrDomainExists        = errors.New("domain already registered")
	ErrAliasNotFound       = errors.New("alias not found")
	ErrRecipientsRequired  = errors.New("at least one recipient is required")

	// sync errors
	ErrSyncInProgress = errors.New("sync already in progress for this mailbox")
)
