package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/bucketing"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

type accountRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewAccountRepository(client *ScyllaClient, bucketing *bucketing.BucketingManager) AccountRepository {
	return &accountRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *accountRepository) GetByID(ctx context.Context, mentorID string) (*model.Mentor, error) {
	bucket := r.bucketing.MentorBucket(mentorID)
	mentor := &model.Mentor{}

	query := r.client.Prepared.GetMentor.Bind(bucket, mentorID).WithContext(ctx)
	if err := r.scanMentor(query, mentor); err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get mentor by id",
			zap.String("mentor_id", mentorID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get mentor: %w", err)
	}
	return mentor, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, emailAddress string) (*model.Mentor, error) {
	var bucket int
	var mentorID string

	query := r.client.Prepared.GetMentorByEmail.Bind(emailAddress).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &bucket, &mentorID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to resolve mentor by email", zap.Error(err))
		return nil, fmt.Errorf("failed to resolve mentor by email: %w", err)
	}

	return r.GetByID(ctx, mentorID)
}

func (r *accountRepository) Create(ctx context.Context, mentor *model.Mentor) error {
	if mentor.ID == "" {
		mentor.ID = uuid.New().String()
	}
	mentor.Bucket = r.bucketing.MentorBucket(mentor.ID)

	now := time.Now().UTC()
	mentor.CreatedAt = now
	mentor.UpdatedAt = now

	// Logged batch keeps the lookup table consistent with the main row
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.CreateMentor.Statement(),
		mentor.Bucket, mentor.ID, mentor.Username, mentor.Name,
		mentor.EmailAddress, mentor.PasswordHash, mentor.TOTPKey,
		string(mentor.TwoFactor), mentor.IsActive, mentor.Suspended,
		mentor.ToBeDeleted, mentor.IsAdmin, mentor.AllowedIPs,
		mentor.DeniedIPs, mentor.CreatedAt, mentor.UpdatedAt)

	if mentor.EmailAddress != "" {
		batch.Query(r.client.Prepared.CreateMentorByEmail.Statement(),
			mentor.EmailAddress, mentor.Bucket, mentor.ID)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create mentor",
			zap.String("mentor_id", mentor.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create mentor: %w", err)
	}

	util.Info("Mentor created", zap.String("mentor_id", mentor.ID))
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, mentor *model.Mentor, encodedHash string) error {
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateMentorPassword.
		Bind(encodedHash, now, mentor.Bucket, mentor.ID).
		WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update mentor password",
			zap.String("mentor_id", mentor.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update password: %w", err)
	}

	mentor.PasswordHash = encodedHash
	mentor.UpdatedAt = now

	util.Info("Mentor password updated", zap.String("mentor_id", mentor.ID))
	return nil
}

func (r *accountRepository) UpdateTwoFactor(ctx context.Context, mentor *model.Mentor, totpKey string, method model.TwoFactorMethod) error {
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateMentorTwoFactor.
		Bind(totpKey, string(method), now, mentor.Bucket, mentor.ID).
		WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update mentor two-factor settings",
			zap.String("mentor_id", mentor.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update two-factor settings: %w", err)
	}

	mentor.TOTPKey = totpKey
	mentor.TwoFactor = method
	mentor.UpdatedAt = now

	util.Info("Mentor two-factor settings updated",
		zap.String("mentor_id", mentor.ID),
		zap.String("method", string(method)))
	return nil
}

func (r *accountRepository) UpdateEmailAddress(ctx context.Context, mentor *model.Mentor, emailAddress string) error {
	now := time.Now().UTC()

	// Main row and email lookup table move together
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE mentors SET email_address = ?, updated_at = ? WHERE bucket = ? AND id = ?`,
		emailAddress, now, mentor.Bucket, mentor.ID)
	if mentor.EmailAddress != "" && mentor.EmailAddress != emailAddress {
		batch.Query(`DELETE FROM mentors_by_email WHERE email_address = ?`, mentor.EmailAddress)
	}
	batch.Query(r.client.Prepared.CreateMentorByEmail.Statement(),
		emailAddress, mentor.Bucket, mentor.ID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to update mentor email address",
			zap.String("mentor_id", mentor.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update email address: %w", err)
	}

	mentor.EmailAddress = emailAddress
	mentor.UpdatedAt = now

	util.Info("Mentor email address updated", zap.String("mentor_id", mentor.ID))
	return nil
}

func (r *accountRepository) scanMentor(query *gocql.Query, mentor *model.Mentor) error {
	var twoFactor string
	err := r.client.ScanWithRetry(query,
		&mentor.Bucket, &mentor.ID, &mentor.Username, &mentor.Name,
		&mentor.EmailAddress, &mentor.PasswordHash, &mentor.TOTPKey,
		&twoFactor, &mentor.IsActive, &mentor.Suspended,
		&mentor.ToBeDeleted, &mentor.IsAdmin, &mentor.AllowedIPs,
		&mentor.DeniedIPs, &mentor.CreatedAt, &mentor.UpdatedAt)
	if err != nil {
		return err
	}

	mentor.TwoFactor = model.TwoFactorMethod(twoFactor)
	if mentor.TwoFactor == "" {
		mentor.TwoFactor = model.TwoFactorNone
	}
	return nil
}
