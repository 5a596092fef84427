package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

type contactRepository struct {
	client *ScyllaClient
}

func NewContactRepository(client *ScyllaClient) ContactRepository {
	return &contactRepository{client: client}
}

func (r *contactRepository) ListByMentor(ctx context.Context, mentor *model.Mentor, kind model.ContactKind) ([]*model.Contact, error) {
	iter := r.client.Prepared.ListContacts.
		Bind(mentor.Bucket, mentor.ID, string(kind)).
		WithContext(ctx).
		Iter()

	var contacts []*model.Contact
	for {
		c := &model.Contact{MentorID: mentor.ID}
		var kindStr string
		if !iter.Scan(&c.ID, &kindStr, &c.Value, &c.CountryPrefix,
			&c.Verified, &c.Primary, &c.CreatedAt, &c.UpdatedAt) {
			break
		}
		c.Kind = model.ContactKind(kindStr)
		contacts = append(contacts, c)
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to list contacts",
			zap.String("mentor_id", mentor.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

func (r *contactRepository) GetByID(ctx context.Context, mentor *model.Mentor, kind model.ContactKind, contactID string) (*model.Contact, error) {
	c := &model.Contact{MentorID: mentor.ID}
	var kindStr string

	query := r.client.Prepared.GetContact.
		Bind(mentor.Bucket, mentor.ID, string(kind), contactID).
		WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&c.ID, &kindStr, &c.Value, &c.CountryPrefix,
		&c.Verified, &c.Primary, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get contact",
			zap.String("mentor_id", mentor.ID),
			zap.String("contact_id", contactID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	c.Kind = model.ContactKind(kindStr)
	return c, nil
}

func (r *contactRepository) VerifiedPrimary(ctx context.Context, mentor *model.Mentor, kind model.ContactKind) (*model.Contact, error) {
	contacts, err := r.ListByMentor(ctx, mentor, kind)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if c.Verified && c.Primary {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *contactRepository) OwnerOfVerifiedValue(ctx context.Context, kind model.ContactKind, value, countryPrefix string) (string, error) {
	var mentorID, contactID string

	query := r.client.Prepared.GetContactInUse.
		Bind(string(kind), value, countryPrefix).
		WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &mentorID, &contactID); err != nil {
		if err == gocql.ErrNotFound {
			return "", ErrNotFound
		}
		util.Error("Failed to check contact value ownership",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return "", fmt.Errorf("failed to check contact value: %w", err)
	}
	return mentorID, nil
}

func (r *contactRepository) CreateVerified(ctx context.Context, mentor *model.Mentor, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.MentorID = mentor.ID
	contact.Verified = true

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	// Contact row and the uniqueness lookup land atomically
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.CreateContact.Statement(),
		mentor.Bucket, mentor.ID, string(contact.Kind), contact.ID,
		contact.Value, contact.CountryPrefix, contact.Verified,
		contact.Primary, contact.CreatedAt, contact.UpdatedAt)
	batch.Query(r.client.Prepared.CreateContactUse.Statement(),
		string(contact.Kind), contact.Value, contact.CountryPrefix, mentor.ID, contact.ID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create contact",
			zap.String("mentor_id", mentor.ID),
			zap.String("kind", string(contact.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to create contact: %w", err)
	}

	util.Info("Contact created",
		zap.String("mentor_id", mentor.ID),
		zap.String("contact_id", contact.ID),
		zap.String("kind", string(contact.Kind)),
		zap.Bool("primary", contact.Primary))
	return nil
}

// SetPrimary promotes target and demotes every other record of the
// kind in one logged batch, so a reader never observes two primaries.
func (r *contactRepository) SetPrimary(ctx context.Context, mentor *model.Mentor, target *model.Contact, current []*model.Contact) error {
	now := time.Now().UTC()

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.SetContactFlag.Statement(),
		true, now, mentor.Bucket, mentor.ID, string(target.Kind), target.ID)
	for _, c := range current {
		if c.ID == target.ID || !c.Primary {
			continue
		}
		batch.Query(r.client.Prepared.SetContactFlag.Statement(),
			false, now, mentor.Bucket, mentor.ID, string(c.Kind), c.ID)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to set primary contact",
			zap.String("mentor_id", mentor.ID),
			zap.String("contact_id", target.ID),
			zap.Error(err))
		return fmt.Errorf("failed to set primary contact: %w", err)
	}

	target.Primary = true
	target.UpdatedAt = now
	for _, c := range current {
		if c.ID != target.ID {
			c.Primary = false
		}
	}

	util.Info("Primary contact updated",
		zap.String("mentor_id", mentor.ID),
		zap.String("contact_id", target.ID),
		zap.String("kind", string(target.Kind)))
	return nil
}

func (r *contactRepository) Delete(ctx context.Context, mentor *model.Mentor, contact *model.Contact) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.DeleteContact.Statement(),
		mentor.Bucket, mentor.ID, string(contact.Kind), contact.ID)
	if contact.Verified {
		batch.Query(r.client.Prepared.DeleteContactUse.Statement(),
			string(contact.Kind), contact.Value, contact.CountryPrefix)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to delete contact",
			zap.String("mentor_id", mentor.ID),
			zap.String("contact_id", contact.ID),
			zap.Error(err))
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	util.Info("Contact deleted",
		zap.String("mentor_id", mentor.ID),
		zap.String("contact_id", contact.ID),
		zap.String("kind", string(contact.Kind)))
	return nil
}
