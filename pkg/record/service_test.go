/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/common/model"
	"github.com/medvault/medvault-go/pkg/crypto/envelope"
	mocks "github.com/medvault/medvault-go/pkg/internal/gomocks/record"
	"github.com/medvault/medvault-go/pkg/record"
)

var doctor = record.Identity{UserID: "10", FullName: "Dr. House", Role: "doctor", Token: "tok"}

func TestService_NotAuthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := record.New(mocks.NewMockAgentService(ctrl), mocks.NewMockBackend(ctrl))
	ctx := context.Background()
	anon := record.Identity{}

	_, err := s.CreateRecord(ctx, anon, record.RecordFields{}, "20")
	require.ErrorIs(t, err, record.ErrNotAuthenticated)

	_, err = s.FetchAndDecryptRecords(ctx, anon, "20")
	require.ErrorIs(t, err, record.ErrNotAuthenticated)

	err = s.GrantAccess(ctx, anon, "r1", "wrapped", "30")
	require.ErrorIs(t, err, record.ErrNotAuthenticated)

	_, err = s.RegisterLocalPublicKey(ctx, anon)
	require.ErrorIs(t, err, record.ErrNotAuthenticated)

	_, err = s.ResolvePatientUserID(ctx, anon, "p1")
	require.ErrorIs(t, err, record.ErrNotAuthenticated)
}

func TestService_InvalidInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := record.New(mocks.NewMockAgentService(ctrl), mocks.NewMockBackend(ctrl))
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, doctor, record.RecordFields{}, "")
	require.ErrorIs(t, err, record.ErrInvalidInput)

	_, err = s.FetchAndDecryptRecords(ctx, doctor, "")
	require.ErrorIs(t, err, record.ErrInvalidInput)

	err = s.GrantAccess(ctx, doctor, "r1", "", "30")
	require.ErrorIs(t, err, record.ErrInvalidInput)

	_, err = s.ResolvePatientUserID(ctx, doctor, "")
	require.ErrorIs(t, err, record.ErrInvalidInput)
}

func TestService_CreateRecord(t *testing.T) {
	ctx := context.Background()
	fields := record.RecordFields{VisitDate: "2024-05-01", Diagnosis: "flu", Symptoms: "fever"}
	keys := []backend.PublicKey{{UserID: "20", PublicKey: "pk-patient"}, {UserID: "10", PublicKey: "pk-doctor"}}

	t.Run("wrapped locally for every reader with a key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		var recordKey string

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"20", "10", "30"}).Return(keys, nil)
		agentService.EXPECT().IsConnected().Return(true)
		agentService.EXPECT().WrapKey(gomock.Any(), gomock.Any(), []string{"pk-patient", "pk-doctor"}).DoAndReturn(
			func(_ context.Context, key string, _ []string) ([]string, error) {
				recordKey = key

				return []string{"w-patient", "w-doctor"}, nil
			})
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, rec *backend.NewRecord) (*backend.CreatedRecord, error) {
				require.False(t, rec.ServerSideWrap)
				require.Empty(t, rec.AESKey)
				require.Equal(t, "2024-05-01", rec.Date)
				require.Equal(t, model.ID("20"), rec.PatientUserID)
				require.Equal(t, model.ID("10"), rec.DoctorUserID)
				require.Equal(t, []backend.WrappedKey{
					{UserID: "20", EncryptedAESKey: "w-patient"},
					{UserID: "10", EncryptedAESKey: "w-doctor"},
				}, rec.EncryptedKeys)

				var opened record.RecordFields
				require.NoError(t, envelope.OpenInto(rec.EncryptedDescription, recordKey, &opened))
				require.Equal(t, "flu", opened.Diagnosis)
				require.Equal(t, "Dr. House", opened.DoctorName)
				require.Equal(t, "doctor", opened.DoctorRole)

				return &backend.CreatedRecord{ID: "r1", CreatedAt: "2024-05-01T10:00:00Z"}, nil
			})

		s := record.New(agentService, backendClient)

		res, err := s.CreateRecord(ctx, doctor, fields, "20", "30", "10")
		require.NoError(t, err)
		require.Equal(t, model.ID("r1"), res.RecordID)
		require.Equal(t, record.LocallyWrapped, res.Outcome)
		require.Equal(t, []string{"20", "10"}, res.WrappedFor)
	})

	t.Run("agent unavailable falls back to server side wrapping", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).Return(keys, nil)
		agentService.EXPECT().IsConnected().Return(false)
		agentService.EXPECT().Connect(gomock.Any()).Return(agent.ErrConnection)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, rec *backend.NewRecord) (*backend.CreatedRecord, error) {
				require.True(t, rec.ServerSideWrap)
				require.Empty(t, rec.EncryptedKeys)

				var opened record.RecordFields
				require.NoError(t, envelope.OpenInto(rec.EncryptedDescription, rec.AESKey, &opened))
				require.Equal(t, "fever", opened.Symptoms)

				return &backend.CreatedRecord{ID: "r2"}, nil
			})

		s := record.New(agentService, backendClient)

		res, err := s.CreateRecord(ctx, doctor, fields, "20")
		require.NoError(t, err)
		require.Equal(t, record.ServerWrapPending, res.Outcome)
		require.Empty(t, res.WrappedFor)
	})

	t.Run("wrap failure falls back to server side wrapping", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).Return(keys, nil)
		agentService.EXPECT().IsConnected().Return(true)
		agentService.EXPECT().WrapKey(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, agent.ErrTimeout)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, rec *backend.NewRecord) (*backend.CreatedRecord, error) {
				require.True(t, rec.ServerSideWrap)
				require.NotEmpty(t, rec.AESKey)

				return &backend.CreatedRecord{ID: "r3"}, nil
			})

		res, err := record.New(agentService, backendClient).CreateRecord(ctx, doctor, fields, "20")
		require.NoError(t, err)
		require.Equal(t, record.ServerWrapPending, res.Outcome)
	})

	t.Run("no reader has a key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).Return([]backend.PublicKey{}, nil)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, rec *backend.NewRecord) (*backend.CreatedRecord, error) {
				require.True(t, rec.ServerSideWrap)

				return &backend.CreatedRecord{ID: "r4"}, nil
			})

		res, err := record.New(mocks.NewMockAgentService(ctrl), backendClient).
			CreateRecord(ctx, record.Identity{UserID: "10"}, fields, "20")
		require.NoError(t, err)
		require.Equal(t, record.ServerWrapPending, res.Outcome)
	})

	t.Run("public keys are cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"20", "10"}).Return(keys, nil).Times(1)
		agentService.EXPECT().IsConnected().Return(true).Times(2)
		agentService.EXPECT().WrapKey(gomock.Any(), gomock.Any(), []string{"pk-patient", "pk-doctor"}).
			Return([]string{"a", "b"}, nil).Times(2)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).
			Return(&backend.CreatedRecord{ID: "r5"}, nil).Times(2)

		s := record.New(agentService, backendClient, record.WithKeyCache(10, time.Minute))

		for i := 0; i < 2; i++ {
			res, err := s.CreateRecord(ctx, doctor, fields, "20")
			require.NoError(t, err)
			require.Equal(t, record.LocallyWrapped, res.Outcome)
		}
	})

	t.Run("backend failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		backendClient := mocks.NewMockBackend(ctrl)
		backendErr := &backend.Error{StatusCode: 500, Message: "boom"}

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).Return(nil, backendErr)

		s := record.New(mocks.NewMockAgentService(ctrl), backendClient)

		_, err := s.CreateRecord(ctx, doctor, fields, "20")
		require.ErrorIs(t, err, backend.ErrBackend)
		require.Contains(t, err.Error(), "fetch reader public keys")

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).Return([]backend.PublicKey{}, nil)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil, backendErr)

		_, err = s.CreateRecord(ctx, doctor, fields, "20")
		require.ErrorIs(t, err, backend.ErrBackend)
		require.Contains(t, err.Error(), "store record")
	})
}

func TestService_FetchAndDecryptRecords(t *testing.T) {
	ctx := context.Background()
	patient := record.Identity{UserID: "20", FullName: "Jane Doe", Role: "patient"}

	t.Run("merges agent results by id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetRecords(gomock.Any(), "20", "20").Return([]backend.Record{
			{ID: "1", Description: "d1", EncryptedKey: "k1", CreatedAt: "2024-01-01", PatientUserID: "20",
				Doctor: &backend.Doctor{FirstName: "Gregory", LastName: "House"}},
			{ID: "2", Description: "d2", EncryptedKey: "k2", CreatedAt: "2024-01-02"},
			{ID: "3", Description: "d3", CreatedAt: "2024-01-03"},
			{ID: "4", Description: "d4", EncryptedKey: "k4", CreatedAt: "2024-01-04"},
		}, nil)
		agentService.EXPECT().UnwrapAndDecrypt(gomock.Any(), []agent.SealedRecord{
			{ID: "1", EncryptedAESKey: "k1", EncryptedDescription: "d1"},
			{ID: "2", EncryptedAESKey: "k2", EncryptedDescription: "d2"},
			{ID: "4", EncryptedAESKey: "k4", EncryptedDescription: "d4"},
		}).Return([]agent.DecryptedRecord{
			{ID: "2", Err: "decryption failed"},
			{ID: "1", AESKey: "aes1", Fields: map[string]interface{}{
				"diagnosis": "flu", "doctorName": "Someone Else",
			}},
		}, nil)

		recs, err := record.New(agentService, backendClient).FetchAndDecryptRecords(ctx, patient, "20")
		require.NoError(t, err)
		require.Len(t, recs, 4)

		require.Equal(t, model.ID("1"), recs[0].ID)
		require.Empty(t, recs[0].DecryptError)
		require.Equal(t, "flu", recs[0].Fields.Diagnosis)
		require.Equal(t, "2024-01-01", recs[0].Fields.VisitDate)
		require.Equal(t, "Gregory House", recs[0].DoctorName)
		require.Equal(t, "aes1", recs[0].AESKey)

		require.Equal(t, "decryption failed", recs[1].DecryptError)
		require.Equal(t, "2024-01-02", recs[1].Fields.VisitDate)

		require.Contains(t, recs[2].DecryptError, "not available")
		require.Contains(t, recs[3].DecryptError, "no result")
	})

	t.Run("doctor name comes from the sealed fields", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetRecords(gomock.Any(), "20", "20").Return([]backend.Record{
			{ID: "1", Description: "d1", EncryptedKey: "k1"},
		}, nil)
		agentService.EXPECT().UnwrapAndDecrypt(gomock.Any(), gomock.Any()).Return([]agent.DecryptedRecord{
			{ID: "1", Fields: map[string]interface{}{"doctorName": "Dr. Who", "visitDate": "2023-12-24"}},
		}, nil)

		recs, err := record.New(agentService, backendClient).FetchAndDecryptRecords(ctx, patient, "20")
		require.NoError(t, err)
		require.Equal(t, "Dr. Who", recs[0].DoctorName)
		require.Equal(t, "2023-12-24", recs[0].Fields.VisitDate)
	})

	t.Run("no readable record skips the agent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		backendClient := mocks.NewMockBackend(ctrl)
		backendClient.EXPECT().GetRecords(gomock.Any(), "20", "20").Return([]backend.Record{{ID: "1"}}, nil)

		recs, err := record.New(mocks.NewMockAgentService(ctrl), backendClient).
			FetchAndDecryptRecords(ctx, patient, "20")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.NotEmpty(t, recs[0].DecryptError)
	})

	t.Run("batch failure fails the call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetRecords(gomock.Any(), gomock.Any(), gomock.Any()).Return([]backend.Record{
			{ID: "1", Description: "d1", EncryptedKey: "k1"},
		}, nil)
		agentService.EXPECT().UnwrapAndDecrypt(gomock.Any(), gomock.Any()).Return(nil, agent.ErrTimeout)

		_, err := record.New(agentService, backendClient).FetchAndDecryptRecords(ctx, patient, "20")
		require.ErrorIs(t, err, agent.ErrTimeout)
		require.Contains(t, err.Error(), "decrypt records")
	})

	t.Run("backend failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		backendClient := mocks.NewMockBackend(ctrl)
		backendClient.EXPECT().GetRecords(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("down"))

		_, err := record.New(mocks.NewMockAgentService(ctrl), backendClient).
			FetchAndDecryptRecords(ctx, patient, "20")
		require.EqualError(t, err, "fetch records: down")
	})
}

func TestService_GrantAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"30"}).
			Return([]backend.PublicKey{{UserID: "30", PublicKey: "pk-30"}}, nil)
		agentService.EXPECT().RewrapKey(gomock.Any(), "mine", "pk-30").Return("theirs", nil)
		backendClient.EXPECT().AddRecordKey(gomock.Any(), "r1",
			backend.WrappedKey{UserID: "30", EncryptedAESKey: "theirs"}).Return(nil)

		require.NoError(t, record.New(agentService, backendClient).GrantAccess(ctx, doctor, "r1", "mine", "30"))
	})

	t.Run("target without public key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		backendClient := mocks.NewMockBackend(ctrl)
		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"30"}).Return([]backend.PublicKey{}, nil)

		err := record.New(mocks.NewMockAgentService(ctrl), backendClient).GrantAccess(ctx, doctor, "r1", "mine", "30")
		require.ErrorIs(t, err, record.ErrNoPublicKey)
	})

	t.Run("rewrap failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		backendClient.EXPECT().GetPublicKeys(gomock.Any(), gomock.Any()).
			Return([]backend.PublicKey{{UserID: "30", PublicKey: "pk-30"}}, nil)
		agentService.EXPECT().RewrapKey(gomock.Any(), gomock.Any(), gomock.Any()).Return("", agent.ErrAgent)

		err := record.New(agentService, backendClient).GrantAccess(ctx, doctor, "r1", "mine", "30")
		require.ErrorIs(t, err, agent.ErrAgent)
	})
}

func TestService_RegisterLocalPublicKey(t *testing.T) {
	ctx := context.Background()

	t.Run("success fills the cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		backendClient := mocks.NewMockBackend(ctrl)

		agentService.EXPECT().FetchLocalPublicKey(gomock.Any()).Return("pk-doctor", nil)
		backendClient.EXPECT().RegisterPublicKey(gomock.Any(), "10", "pk-doctor").Return(nil)
		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"30"}).
			Return([]backend.PublicKey{{UserID: "30", PublicKey: "pk-30"}}, nil)
		agentService.EXPECT().RewrapKey(gomock.Any(), "mine", "pk-30").Return("theirs", nil)
		backendClient.EXPECT().AddRecordKey(gomock.Any(), "r1", gomock.Any()).Return(nil)

		s := record.New(agentService, backendClient)

		pk, err := s.RegisterLocalPublicKey(ctx, doctor)
		require.NoError(t, err)
		require.Equal(t, "pk-doctor", pk)

		// the doctor's key is served from the cache, only the target is fetched
		agentService.EXPECT().IsConnected().Return(true)
		agentService.EXPECT().WrapKey(gomock.Any(), gomock.Any(), []string{"pk-doctor"}).Return([]string{"w"}, nil)
		backendClient.EXPECT().GetPublicKeys(gomock.Any(), []string{"40"}).Return([]backend.PublicKey{}, nil)
		backendClient.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(&backend.CreatedRecord{ID: "r9"}, nil)

		res, err := s.CreateRecord(ctx, doctor, record.RecordFields{}, "40")
		require.NoError(t, err)
		require.Equal(t, []string{"10"}, res.WrappedFor)

		require.NoError(t, s.GrantAccess(ctx, doctor, "r1", "mine", "30"))
	})

	t.Run("agent failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		agentService := mocks.NewMockAgentService(ctrl)
		agentService.EXPECT().FetchLocalPublicKey(gomock.Any()).Return("", agent.ErrConnection)

		_, err := record.New(agentService, mocks.NewMockBackend(ctrl)).RegisterLocalPublicKey(ctx, doctor)
		require.ErrorIs(t, err, agent.ErrConnection)
	})
}

func TestService_ResolvePatientUserID(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	backendClient := mocks.NewMockBackend(ctrl)
	backendClient.EXPECT().GetPatient(gomock.Any(), "p1").Return(&backend.Patient{ID: "p1", UserID: "20"}, nil)
	backendClient.EXPECT().GetPatient(gomock.Any(), "p2").Return(&backend.Patient{ID: "p2"}, nil)

	s := record.New(mocks.NewMockAgentService(ctrl), backendClient)

	uid, err := s.ResolvePatientUserID(ctx, doctor, "p1")
	require.NoError(t, err)
	require.Equal(t, "20", uid)

	_, err = s.ResolvePatientUserID(ctx, doctor, "p2")
	require.ErrorIs(t, err, record.ErrPatientNotFound)
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "locally-wrapped", record.LocallyWrapped.String())
	require.Equal(t, "server-wrap-pending", record.ServerWrapPending.String())
	require.Equal(t, "unknown", record.Outcome(9).String())

	text, err := record.ServerWrapPending.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "server-wrap-pending", string(text))

	var o record.Outcome
	require.NoError(t, o.UnmarshalText([]byte("locally-wrapped")))
	require.Equal(t, record.LocallyWrapped, o)
	require.Error(t, o.UnmarshalText([]byte("other")))
}
