package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) interfaces.CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) GetByOrgAndService(ctx context.Context, organizationID string, service enum.ProviderService) (*models.ProviderCredential, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialRepository.GetByOrgAndService")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	span.LogKV("service", service.String())

	var credential models.ProviderCredential
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND service = ?", organizationID, service).
		First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &credential, nil
}

// Upsert overwrites the (organization, service) row in place; credentials are
// rotated, never versioned.
func (r *credentialRepository) Upsert(ctx context.Context, credential *models.ProviderCredential) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, credential.OrganizationID)
	span.LogKV("service", credential.Service.String())

	result := r.db.WithContext(ctx).
		Model(&models.ProviderCredential{}).
		Where("organization_id = ? AND service = ?", credential.OrganizationID, credential.Service).
		Updates(map[string]interface{}{
			"api_token":  credential.APIToken,
			"username":   credential.Username,
			"password":   credential.Password,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}

	if result.RowsAffected == 0 {
		if err := r.db.WithContext(ctx).Create(credential).Error; err != nil {
			tracing.TraceErr(span, errors.Wrap(err, "db error"))
			return err
		}
	}

	return nil
}

func (r *credentialRepository) ListByService(ctx context.Context, service enum.ProviderService) ([]models.ProviderCredential, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialRepository.ListByService")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("service", service.String())

	var credentials []models.ProviderCredential
	err := r.db.WithContext(ctx).
		Where("service = ?", service).
		Find(&credentials).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return credentials, nil
}

func (r *credentialRepository) Delete(ctx context.Context, organizationID string, service enum.ProviderService) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)

	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND service = ?", organizationID, service).
		Delete(&models.ProviderCredential{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
