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

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) GetByMailbox(ctx context.Context, organizationID, emailAddress string, provider enum.ProviderService) (*models.SyncState, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "SyncStateRepository.GetByMailbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, organizationID)
	span.LogKV("emailAddress", emailAddress, "provider", provider.String())

	var state models.SyncState
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND email_address = ? AND provider = ?", organizationID, emailAddress, provider).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &state, nil
}

func (r *syncStateRepository) Create(ctx context.Context, state *models.SyncState) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SyncStateRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagOrganization(span, state.OrganizationID)

	state.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).Create(state).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// BeginSync claims the mailbox for a sync run. The guard is a conditional
// update on sync_status so two overlapping runs resolve at the database.
func (r *syncStateRepository) BeginSync(ctx context.Context, id string) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "SyncStateRepository.BeginSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("id = ? AND sync_status <> ?", id, enum.SyncStatusSyncing).
		Updates(map[string]any{
			"sync_status": enum.SyncStatusSyncing,
			"updated_at":  utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	claimed := result.RowsAffected > 0
	span.LogFields(tracingLog.Bool("result.claimed", claimed))
	return claimed, nil
}

// CompleteSync releases the mailbox and records the outcome. The update is
// conditional on the row still being in syncing, so a stale run that lost the
// claim cannot overwrite a newer one's result.
func (r *syncStateRepository) CompleteSync(ctx context.Context, id string, lastUID uint32, status enum.SyncStatus, errMsg string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SyncStateRepository.CompleteSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("lastUid", lastUID, "status", status.String())

	now := utils.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("id = ? AND sync_status = ?", id, enum.SyncStatusSyncing).
		Updates(map[string]any{
			"last_uid":     lastUID,
			"sync_status":  status,
			"last_error":   errMsg,
			"last_sync_at": &now,
			"updated_at":   now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		span.LogFields(tracingLog.String("result", "no syncing row to complete"))
	}

	return nil
}

// Reset rewinds the watermark to zero. The next run re-reads the full
// mailbox; the message id dedup keeps that from duplicating rows.
func (r *syncStateRepository) Reset(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SyncStateRepository.Reset")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_uid":    0,
			"sync_status": enum.SyncStatusIdle,
			"last_error":  "",
			"updated_at":  utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
