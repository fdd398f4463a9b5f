/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package record protects medical records end to end: a fresh symmetric key
// seals each record and the local agent wraps that key for every reader.
package record

//go:generate mockgen -destination ../internal/gomocks/record/mocks.go -package mocks -mock_names AgentService=MockAgentService,Backend=MockBackend . AgentService,Backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/mitchellh/mapstructure"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/common/log"
	"github.com/medvault/medvault-go/pkg/common/model"
	"github.com/medvault/medvault-go/pkg/crypto/envelope"
)

const (
	defaultKeyCacheSize = 256
	defaultKeyCacheTTL  = 5 * time.Minute

	unspecifiedDoctor = "Not specified"
	defaultRole       = "doctor"
)

var logger = log.New("medvault/record")

var (
	// ErrNotAuthenticated is returned when the identity names no user.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrInvalidInput is returned for missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoPublicKey is returned when a user has no registered public key.
	ErrNoPublicKey = errors.New("no public key registered")
	// ErrPatientNotFound is returned when a patient has no linked user.
	ErrPatientNotFound = errors.New("patient not found")
)

// AgentService is the part of the agent client the workflow uses.
type AgentService interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	FetchLocalPublicKey(ctx context.Context) (string, error)
	WrapKey(ctx context.Context, key string, recipientPublicKeys []string) ([]string, error)
	UnwrapAndDecrypt(ctx context.Context, records []agent.SealedRecord) ([]agent.DecryptedRecord, error)
	RewrapKey(ctx context.Context, wrappedKey, targetPublicKey string) (string, error)
}

// Backend is the part of the REST backend the workflow uses.
type Backend interface {
	GetPatient(ctx context.Context, patientID string) (*backend.Patient, error)
	GetPublicKeys(ctx context.Context, userIDs []string) ([]backend.PublicKey, error)
	RegisterPublicKey(ctx context.Context, userID, publicKey string) error
	CreateRecord(ctx context.Context, rec *backend.NewRecord) (*backend.CreatedRecord, error)
	GetRecords(ctx context.Context, userID, keyUserID string) ([]backend.Record, error)
	AddRecordKey(ctx context.Context, recordID string, key backend.WrappedKey) error
}

// Option configures the Service.
type Option func(s *serviceOpts)

type serviceOpts struct {
	cacheSize int
	cacheTTL  time.Duration
}

// WithKeyCache sets the size and lifetime of the public key cache.
func WithKeyCache(size int, ttl time.Duration) Option {
	return func(s *serviceOpts) {
		if size > 0 {
			s.cacheSize = size
		}

		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// Service runs the record workflows.
type Service struct {
	agent   AgentService
	backend Backend
	keys    gcache.Cache
}

// New returns a Service over the given agent and backend.
func New(agentService AgentService, backendClient Backend, opts ...Option) *Service {
	o := &serviceOpts{cacheSize: defaultKeyCacheSize, cacheTTL: defaultKeyCacheTTL}

	for _, opt := range opts {
		opt(o)
	}

	return &Service{
		agent:   agentService,
		backend: backendClient,
		keys:    gcache.New(o.cacheSize).LRU().Expiration(o.cacheTTL).Build(),
	}
}

// CreateRecord seals fields under a fresh key and stores the record for the
// patient, the author and any extra readers. When the agent cannot wrap the
// key the backend is asked to wrap it instead.
func (s *Service) CreateRecord(ctx context.Context, id Identity, fields RecordFields, patientUserID string,
	extraReaders ...string) (*CreateResult, error) {
	if !id.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if patientUserID == "" {
		return nil, fmt.Errorf("%w: patient user id is required", ErrInvalidInput)
	}

	ctx = withToken(ctx, id)

	key, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}

	fields.DoctorName = firstNonEmpty(id.FullName, unspecifiedDoctor)
	fields.DoctorRole = firstNonEmpty(id.Role, defaultRole)

	sealed, err := envelope.Seal(fields, key)
	if err != nil {
		return nil, fmt.Errorf("seal record: %w", err)
	}

	readers := uniqueIDs(append([]string{patientUserID, id.UserID}, extraReaders...))

	keys, err := s.publicKeys(ctx, readers)
	if err != nil {
		return nil, fmt.Errorf("fetch reader public keys: %w", err)
	}

	req := &backend.NewRecord{
		Date:                 fields.VisitDate,
		EncryptedDescription: sealed,
		PatientUserID:        model.ID(patientUserID),
		DoctorUserID:         model.ID(id.UserID),
	}

	result := &CreateResult{Outcome: ServerWrapPending, WrappedFor: []string{}}

	wrapped := s.wrapForReaders(ctx, key, keys)
	if wrapped != nil {
		req.EncryptedKeys = wrapped
		result.Outcome = LocallyWrapped

		for _, w := range wrapped {
			result.WrappedFor = append(result.WrappedFor, w.UserID.String())
		}
	} else {
		req.ServerSideWrap = true
		req.AESKey = key
	}

	created, err := s.backend.CreateRecord(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("store record: %w", err)
	}

	result.RecordID = created.ID
	result.CreatedAt = created.CreatedAt

	logger.Infof("record %s created for patient %s (%s)", created.ID, patientUserID, result.Outcome)

	return result, nil
}

// wrapForReaders returns the key wrapped for each reader, or nil when the
// backend has to wrap it.
func (s *Service) wrapForReaders(ctx context.Context, key string, keys []backend.PublicKey) []backend.WrappedKey {
	if len(keys) == 0 {
		logger.Infof("no reader has a registered public key, backend will wrap the record key")

		return nil
	}

	if !s.agent.IsConnected() {
		if err := s.agent.Connect(ctx); err != nil {
			logger.Warnf("agent unavailable, backend will wrap the record key: %v", err)

			return nil
		}
	}

	publicKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		publicKeys = append(publicKeys, k.PublicKey)
	}

	wrappedKeys, err := s.agent.WrapKey(ctx, key, publicKeys)
	if err != nil {
		logger.Warnf("could not wrap the record key locally, backend will wrap it: %v", err)

		return nil
	}

	out := make([]backend.WrappedKey, 0, len(keys))
	for i, k := range keys {
		out = append(out, backend.WrappedKey{UserID: k.UserID, EncryptedAESKey: wrappedKeys[i]})
	}

	return out
}

// FetchAndDecryptRecords returns the patient's records opened with the caller's keys.
// A failure of the batch fails the call; failures of single records are reported
// on the record.
func (s *Service) FetchAndDecryptRecords(ctx context.Context, id Identity,
	patientUserID string) ([]*DecryptedMedicalRecord, error) {
	if !id.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if patientUserID == "" {
		return nil, fmt.Errorf("%w: patient user id is required", ErrInvalidInput)
	}

	ctx = withToken(ctx, id)

	records, err := s.backend.GetRecords(ctx, patientUserID, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	sealed := make([]agent.SealedRecord, 0, len(records))

	for i := range records {
		if records[i].EncryptedKey == "" {
			continue
		}

		sealed = append(sealed, agent.SealedRecord{
			ID:                   records[i].ID,
			EncryptedAESKey:      records[i].EncryptedKey,
			EncryptedDescription: records[i].Description,
		})
	}

	byID := make(map[model.ID]agent.DecryptedRecord, len(sealed))

	if len(sealed) > 0 {
		opened, err := s.agent.UnwrapAndDecrypt(ctx, sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt records: %w", err)
		}

		for _, rec := range opened {
			byID[rec.ID] = rec
		}
	}

	out := make([]*DecryptedMedicalRecord, 0, len(records))
	for i := range records {
		out = append(out, merge(&records[i], byID))
	}

	return out, nil
}

func merge(rec *backend.Record, byID map[model.ID]agent.DecryptedRecord) *DecryptedMedicalRecord {
	out := &DecryptedMedicalRecord{
		ID:              rec.ID,
		PatientUserID:   rec.PatientUserID,
		DoctorUserID:    rec.DoctorUserID,
		CreatedAt:       rec.CreatedAt,
		EncryptedAESKey: rec.EncryptedKey,
	}

	if rec.Doctor != nil {
		out.DoctorName = rec.Doctor.Name()
	}

	opened, ok := byID[rec.ID]

	switch {
	case rec.EncryptedKey == "":
		out.DecryptError = "record key is not available for this user"
	case !ok:
		out.DecryptError = "agent returned no result for this record"
	case opened.Err != "":
		out.DecryptError = opened.Err
	default:
		out.AESKey = opened.AESKey

		if err := decodeFields(opened.Fields, &out.Fields); err != nil {
			out.DecryptError = err.Error()
		}
	}

	if out.Fields.VisitDate == "" {
		out.Fields.VisitDate = rec.CreatedAt
	}

	if out.DoctorName == "" {
		out.DoctorName = out.Fields.DoctorName
	}

	return out
}

func decodeFields(raw map[string]interface{}, fields *RecordFields) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           fields,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode record fields: %w", err)
	}

	return nil
}

// GrantAccess gives targetUserID access to a record the caller can read by
// re-wrapping the caller's copy of the record key for the target.
func (s *Service) GrantAccess(ctx context.Context, id Identity, recordID, wrappedKeyForCurrentUser,
	targetUserID string) error {
	if !id.Authenticated() {
		return ErrNotAuthenticated
	}

	if recordID == "" || wrappedKeyForCurrentUser == "" || targetUserID == "" {
		return fmt.Errorf("%w: record id, wrapped key and target user are required", ErrInvalidInput)
	}

	ctx = withToken(ctx, id)

	keys, err := s.publicKeys(ctx, []string{targetUserID})
	if err != nil {
		return fmt.Errorf("fetch target public key: %w", err)
	}

	if len(keys) == 0 {
		return fmt.Errorf("%w for user %s", ErrNoPublicKey, targetUserID)
	}

	rewrapped, err := s.agent.RewrapKey(ctx, wrappedKeyForCurrentUser, keys[0].PublicKey)
	if err != nil {
		return fmt.Errorf("re-wrap record key: %w", err)
	}

	err = s.backend.AddRecordKey(ctx, recordID, backend.WrappedKey{
		UserID:          model.ID(targetUserID),
		EncryptedAESKey: rewrapped,
	})
	if err != nil {
		return fmt.Errorf("store re-wrapped key: %w", err)
	}

	logger.Infof("user %s granted access to record %s", targetUserID, recordID)

	return nil
}

// RegisterLocalPublicKey registers the agent's public key for the caller.
func (s *Service) RegisterLocalPublicKey(ctx context.Context, id Identity) (string, error) {
	if !id.Authenticated() {
		return "", ErrNotAuthenticated
	}

	publicKey, err := s.agent.FetchLocalPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch local public key: %w", err)
	}

	if err := s.backend.RegisterPublicKey(withToken(ctx, id), id.UserID, publicKey); err != nil {
		return "", fmt.Errorf("register public key: %w", err)
	}

	if err := s.keys.Set(id.UserID, publicKey); err != nil {
		logger.Debugf("cache public key of %s: %v", id.UserID, err)
	}

	return publicKey, nil
}

// ResolvePatientUserID returns the user id linked to a patient profile.
func (s *Service) ResolvePatientUserID(ctx context.Context, id Identity, patientID string) (string, error) {
	if !id.Authenticated() {
		return "", ErrNotAuthenticated
	}

	if patientID == "" {
		return "", fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}

	patient, err := s.backend.GetPatient(withToken(ctx, id), patientID)
	if err != nil {
		return "", fmt.Errorf("fetch patient: %w", err)
	}

	if patient.UserID == "" {
		return "", fmt.Errorf("%w: patient %s has no user account", ErrPatientNotFound, patientID)
	}

	return patient.UserID.String(), nil
}

// publicKeys returns the registered keys of userIDs in order, skipping users without one.
func (s *Service) publicKeys(ctx context.Context, userIDs []string) ([]backend.PublicKey, error) {
	found := make(map[string]string, len(userIDs))
	missing := make([]string, 0, len(userIDs))

	for _, uid := range userIDs {
		v, err := s.keys.Get(uid)
		if err == nil {
			found[uid] = v.(string) //nolint:forcetypeassert

			continue
		}

		missing = append(missing, uid)
	}

	if len(missing) > 0 {
		fetched, err := s.backend.GetPublicKeys(ctx, missing)
		if err != nil {
			return nil, err
		}

		for _, k := range fetched {
			if k.PublicKey == "" {
				continue
			}

			found[k.UserID.String()] = k.PublicKey

			if err := s.keys.Set(k.UserID.String(), k.PublicKey); err != nil {
				logger.Debugf("cache public key of %s: %v", k.UserID, err)
			}
		}
	}

	out := make([]backend.PublicKey, 0, len(found))

	for _, uid := range userIDs {
		pk, ok := found[uid]
		if !ok {
			logger.Debugf("user %s has no registered public key", uid)

			continue
		}

		out = append(out, backend.PublicKey{UserID: model.ID(uid), PublicKey: pk})
	}

	return out, nil
}

func withToken(ctx context.Context, id Identity) context.Context {
	if id.Token == "" {
		return ctx
	}

	return backend.WithBearerToken(ctx, id.Token)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
