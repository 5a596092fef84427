package scylla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	CreateMentor          *gocql.Query
	CreateMentorByEmail   *gocql.Query
	GetMentor             *gocql.Query
	GetMentorByEmail      *gocql.Query
	UpdateMentorPassword  *gocql.Query
	UpdateMentorTwoFactor *gocql.Query

	ListContacts     *gocql.Query
	GetContact       *gocql.Query
	GetContactInUse  *gocql.Query
	CreateContact    *gocql.Query
	CreateContactUse *gocql.Query
	SetContactFlag   *gocql.Query
	DeleteContact    *gocql.Query
	DeleteContactUse *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateMentor = s.Session.Query(`
        INSERT INTO mentors (
            bucket, id, username, name, email_address, password_hash,
            totp_key, two_factor, is_active, suspended, to_be_deleted,
            is_admin, allowed_ips, denied_ips, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateMentorByEmail = s.Session.Query(`
        INSERT INTO mentors_by_email (email_address, bucket, mentor_id)
        VALUES (?, ?, ?)`)

	prepared.GetMentor = s.Session.Query(`
        SELECT bucket, id, username, name, email_address, password_hash,
            totp_key, two_factor, is_active, suspended, to_be_deleted,
            is_admin, allowed_ips, denied_ips, created_at, updated_at
        FROM mentors WHERE bucket = ? AND id = ?`)

	prepared.GetMentorByEmail = s.Session.Query(`
        SELECT bucket, mentor_id FROM mentors_by_email WHERE email_address = ?`)

	prepared.UpdateMentorPassword = s.Session.Query(`
        UPDATE mentors SET password_hash = ?, updated_at = ?
        WHERE bucket = ? AND id = ?`)

	prepared.UpdateMentorTwoFactor = s.Session.Query(`
        UPDATE mentors SET totp_key = ?, two_factor = ?, updated_at = ?
        WHERE bucket = ? AND id = ?`)

	prepared.ListContacts = s.Session.Query(`
        SELECT id, kind, value, country_prefix, verified, is_primary, created_at, updated_at
        FROM mentor_contacts WHERE bucket = ? AND mentor_id = ? AND kind = ?`)

	prepared.GetContact = s.Session.Query(`
        SELECT id, kind, value, country_prefix, verified, is_primary, created_at, updated_at
        FROM mentor_contacts WHERE bucket = ? AND mentor_id = ? AND kind = ? AND id = ?`)

	prepared.GetContactInUse = s.Session.Query(`
        SELECT mentor_id, contact_id FROM contacts_in_use
        WHERE kind = ? AND value = ? AND country_prefix = ?`)

	prepared.CreateContact = s.Session.Query(`
        INSERT INTO mentor_contacts (
            bucket, mentor_id, kind, id, value, country_prefix,
            verified, is_primary, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateContactUse = s.Session.Query(`
        INSERT INTO contacts_in_use (kind, value, country_prefix, mentor_id, contact_id)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.SetContactFlag = s.Session.Query(`
        UPDATE mentor_contacts SET is_primary = ?, updated_at = ?
        WHERE bucket = ? AND mentor_id = ? AND kind = ? AND id = ?`)

	prepared.DeleteContact = s.Session.Query(`
        DELETE FROM mentor_contacts
        WHERE bucket = ? AND mentor_id = ? AND kind = ? AND id = ?`)

	prepared.DeleteContactUse = s.Session.Query(`
        DELETE FROM contacts_in_use
        WHERE kind = ? AND value = ? AND country_prefix = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
