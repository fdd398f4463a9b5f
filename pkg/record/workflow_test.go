/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/agent/ws"
	"github.com/medvault/medvault-go/pkg/backend"
	mockagent "github.com/medvault/medvault-go/pkg/mock/agent"
	mockbackend "github.com/medvault/medvault-go/pkg/mock/backend"
	"github.com/medvault/medvault-go/pkg/record"
)

func newAgentClient(t *testing.T, url, protocol string) *agent.Client {
	t.Helper()

	d, err := ws.NewDialer()
	require.NoError(t, err)

	codec, err := agent.NewCodec(protocol)
	require.NoError(t, err)

	c, err := agent.New(url, agent.WithDialer(d), agent.WithCodec(codec), agent.WithTimeout(5*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() }) //nolint:errcheck

	return c
}

func startAgent(t *testing.T, protocol string) *agent.Client {
	t.Helper()

	mock, err := mockagent.New(protocol)
	require.NoError(t, err)

	srv := mock.StartNewMockAgentServer()
	t.Cleanup(srv.Close)

	return newAgentClient(t, mockagent.WebsocketURL(srv), protocol)
}

func TestWorkflow(t *testing.T) {
	ctx := context.Background()

	op := mockbackend.New()
	srv := op.StartNewMockBackendServer()
	t.Cleanup(srv.Close)

	op.SetRequireToken(true)

	doctorAcc := op.AddAccount("house@example.com", "pw", backend.User{ID: "10", FullName: "Dr. House", Role: "doctor"})
	patientAcc := op.AddAccount("jane@example.com", "pw", backend.User{ID: "20", FullName: "Jane Doe", Role: "patient"})
	nurseAcc := op.AddAccount("carla@example.com", "pw", backend.User{ID: "30", FullName: "Carla", Role: "nurse"})

	doctorID := record.Identity{UserID: "10", FullName: "Dr. House", Role: "doctor", Token: doctorAcc.Token}
	patientID := record.Identity{UserID: "20", FullName: "Jane Doe", Role: "patient", Token: patientAcc.Token}
	nurseID := record.Identity{UserID: "30", FullName: "Carla", Role: "nurse", Token: nurseAcc.Token}

	doctorSvc := record.New(startAgent(t, agent.TaggedProtocol), backend.New(srv.URL))
	patientSvc := record.New(startAgent(t, agent.LegacyProtocol), backend.New(srv.URL))
	nurseSvc := record.New(startAgent(t, agent.LegacyProtocol), backend.New(srv.URL))

	for _, reg := range []struct {
		svc *record.Service
		id  record.Identity
	}{{doctorSvc, doctorID}, {patientSvc, patientID}, {nurseSvc, nurseID}} {
		pk, err := reg.svc.RegisterLocalPublicKey(ctx, reg.id)
		require.NoError(t, err)
		require.Equal(t, pk, op.PublicKey(reg.id.UserID))
	}

	fields := record.RecordFields{VisitDate: "2024-05-01", Diagnosis: "lupus", Symptoms: "rash", Treatment: "rest"}

	created, err := doctorSvc.CreateRecord(ctx, doctorID, fields, "20")
	require.NoError(t, err)
	require.Equal(t, record.LocallyWrapped, created.Outcome)
	require.ElementsMatch(t, []string{"20", "10"}, created.WrappedFor)

	stored := op.Records()
	require.Len(t, stored, 1)
	require.Empty(t, stored[0].Record.AESKey)
	require.NotContains(t, stored[0].Record.EncryptedDescription, "lupus")

	t.Run("patient reads the record", func(t *testing.T) {
		recs, err := patientSvc.FetchAndDecryptRecords(ctx, patientID, "20")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.Empty(t, recs[0].DecryptError)
		require.Equal(t, created.RecordID, recs[0].ID)
		require.Equal(t, "lupus", recs[0].Fields.Diagnosis)
		require.Equal(t, "Dr. House", recs[0].DoctorName)
		require.Equal(t, "doctor", recs[0].Fields.DoctorRole)
		require.NotEmpty(t, recs[0].AESKey)
	})

	t.Run("nurse cannot read before the grant", func(t *testing.T) {
		recs, err := nurseSvc.FetchAndDecryptRecords(ctx, nurseID, "20")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.NotEmpty(t, recs[0].DecryptError)
		require.Empty(t, recs[0].Fields.Diagnosis)
	})

	t.Run("doctor grants access to the nurse", func(t *testing.T) {
		recs, err := doctorSvc.FetchAndDecryptRecords(ctx, doctorID, "20")
		require.NoError(t, err)
		require.Len(t, recs, 1)

		err = doctorSvc.GrantAccess(ctx, doctorID, recs[0].ID.String(), recs[0].EncryptedAESKey, "30")
		require.NoError(t, err)

		recs, err = nurseSvc.FetchAndDecryptRecords(ctx, nurseID, "20")
		require.NoError(t, err)
		require.Empty(t, recs[0].DecryptError)
		require.Equal(t, "rest", recs[0].Fields.Treatment)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		_, err := patientSvc.FetchAndDecryptRecords(ctx, record.Identity{UserID: "20"}, "20")
		require.ErrorIs(t, err, backend.ErrBackend)
	})
}

func TestWorkflow_AgentDown(t *testing.T) {
	ctx := context.Background()

	op := mockbackend.New()
	srv := op.StartNewMockBackendServer()
	t.Cleanup(srv.Close)

	patientAgent, err := mockagent.New(agent.LegacyProtocol)
	require.NoError(t, err)

	op.SetPublicKey("20", patientAgent.PublicKey())

	agentSrv := patientAgent.StartNewMockAgentServer()
	t.Cleanup(agentSrv.Close)

	// nothing listens on the doctor's agent address
	deadSrv := patientAgent.StartNewMockAgentServer()
	deadURL := mockagent.WebsocketURL(deadSrv)
	deadSrv.Close()

	doctorSvc := record.New(newAgentClient(t, deadURL, agent.TaggedProtocol), backend.New(srv.URL))
	patientSvc := record.New(newAgentClient(t, mockagent.WebsocketURL(agentSrv), agent.LegacyProtocol),
		backend.New(srv.URL))

	doctorID := record.Identity{UserID: "10", FullName: "Dr. House"}

	created, err := doctorSvc.CreateRecord(ctx, doctorID, record.RecordFields{Diagnosis: "migraine"}, "20")
	require.NoError(t, err)
	require.Equal(t, record.ServerWrapPending, created.Outcome)

	stored := op.Records()
	require.Len(t, stored, 1)
	require.True(t, stored[0].Record.ServerSideWrap)
	require.Empty(t, stored[0].Record.AESKey)
	require.Contains(t, stored[0].Keys, "20")

	recs, err := patientSvc.FetchAndDecryptRecords(ctx, record.Identity{UserID: "20"}, "20")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Empty(t, recs[0].DecryptError)
	require.Equal(t, "migraine", recs[0].Fields.Diagnosis)
	require.Equal(t, stored[0].CreatedAt, recs[0].Fields.VisitDate)
}
