package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) interfaces.DomainRepository {
	return &domainRepository{db: db}
}

func (r *domainRepository) Create(ctx context.Context, domain *models.Domain) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, domain.OrganizationID)
	span.LogKV("domain", domain.DomainName)

	domain.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	tracing.TagEntity(span, id)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationID, id).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &domain, nil
}

func (r *domainRepository) GetByName(ctx context.Context, organizationID, domainName string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	span.LogKV("domain", domainName)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND domain_name = ?", organizationID, domainName).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("result.found", false))
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	span.LogFields(tracingLog.Bool("result.found", true))
	return &domain, nil
}

func (r *domainRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.ListByOrganization")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at desc").
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) ListNotActive(ctx context.Context, organizationID string) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.ListNotActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status <> ?", organizationID, enum.DomainStatusActive).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) UpdateVerification(ctx context.Context, id string, status enum.DomainStatus, dnsConfigured bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateVerification")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("status", status.String(), "dnsConfigured", dnsConfigured)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		UpdateColumn("status", status).
		UpdateColumn("dns_configured", dnsConfigured).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

// Delete removes the domain together with its aliases and email links in one
// transaction.
func (r *domainRepository) Delete(ctx context.Context, organizationID, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ?", id).Delete(&models.EmailAlias{}).Error; err != nil {
			return err
		}
		if err := tx.Where("domain_id = ?", id).Delete(&models.EmailDomainLink{}).Error; err != nil {
			return err
		}
		return tx.Where("organization_id = ? AND id = ?", organizationID, id).
			Delete(&models.Domain{}).Error
	})
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
