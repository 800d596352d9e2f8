package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type aliasRepository struct {
	db *gorm.DB
}

func NewAliasRepository(db *gorm.DB) interfaces.AliasRepository {
	return &aliasRepository{db: db}
}

func (r *aliasRepository) Create(ctx context.Context, alias *models.EmailAlias) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AliasRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("alias", alias.AliasName)

	alias.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).Create(alias).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *aliasRepository) GetByID(ctx context.Context, id string) (*models.EmailAlias, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AliasRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var alias models.EmailAlias
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &alias, nil
}

func (r *aliasRepository) ListByDomain(ctx context.Context, domainID string) ([]models.EmailAlias, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AliasRepository.ListByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, domainID)

	var aliases []models.EmailAlias
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("alias_name asc").
		Find(&aliases).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return aliases, nil
}

func (r *aliasRepository) Update(ctx context.Context, alias *models.EmailAlias) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AliasRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, alias.ID)

	err := r.db.WithContext(ctx).
		Model(&models.EmailAlias{}).
		Where("id = ?", alias.ID).
		Updates(map[string]interface{}{
			"recipients":  alias.Recipients,
			"description": alias.Description,
			"is_enabled":  alias.IsEnabled,
			"updated_at":  utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *aliasRepository) Delete(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AliasRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EmailAlias{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
