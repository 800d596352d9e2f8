package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Create(ctx context.Context, email *models.Email) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, email.OrganizationID)
	span.LogKV("messageId", email.MessageID)

	email.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).Create(email).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *emailRepository) ExistsByMessageID(ctx context.Context, organizationID, messageID string) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.ExistsByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("organization_id = ? AND message_id = ?", organizationID, messageID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	span.LogFields(tracingLog.Bool("result.exists", count > 0))
	return count > 0, nil
}

func (r *emailRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Email, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	tracing.TagEntity(span, id)

	var email models.Email
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationID, id).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &email, nil
}

func (r *emailRepository) ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*models.Email, int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.ListByOrganization")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("organization_id = ?", organizationID).
		Count(&total).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, 0, err
	}

	var emails []*models.Email
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("received_at desc").
		Limit(limit).
		Offset(offset).
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, 0, err
	}

	return emails, total, nil
}

func (r *emailRepository) MarkRead(ctx context.Context, organizationID, id string, read bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.MarkRead")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("organization_id = ? AND id = ?", organizationID, id).
		UpdateColumn("is_read", read).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *emailRepository) SetStarred(ctx context.Context, organizationID, id string, starred bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.SetStarred")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("organization_id = ? AND id = ?", organizationID, id).
		UpdateColumn("is_starred", starred).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

// LinkDomain inserts the email-domain join row; an existing link is a no-op.
func (r *emailRepository) LinkDomain(ctx context.Context, emailID, domainID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EmailRepository.LinkDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	link := models.EmailDomainLink{
		EmailID:   emailID,
		DomainID:  domainID,
		CreatedAt: utils.Now(),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
