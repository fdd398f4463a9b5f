/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/agent/ws"
	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/controller/command"
	cmdrecord "github.com/medvault/medvault-go/pkg/controller/command/record"
	mockagent "github.com/medvault/medvault-go/pkg/mock/agent"
	mockbackend "github.com/medvault/medvault-go/pkg/mock/backend"
	"github.com/medvault/medvault-go/pkg/record"
)

type fixture struct {
	backend *mockbackend.MockServerOperation
	router  *mux.Router
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	op := mockbackend.New()
	backendSrv := op.StartNewMockBackendServer()
	t.Cleanup(backendSrv.Close)

	acc := op.AddAccount("house@example.com", "pw", backend.User{ID: "10", FullName: "Dr. House"})
	op.AddPatient(backend.Patient{ID: "p1", UserID: "20"})
	op.SetRequireToken(true)

	mock, err := mockagent.New(agent.TaggedProtocol)
	require.NoError(t, err)

	// the patient's key lives in the same agent so the test can read back
	op.SetPublicKey("20", mock.PublicKey())

	agentSrv := mock.StartNewMockAgentServer()
	t.Cleanup(agentSrv.Close)

	d, err := ws.NewDialer()
	require.NoError(t, err)

	client, err := agent.New(mockagent.WebsocketURL(agentSrv), agent.WithDialer(d), agent.WithTimeout(5*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() }) //nolint:errcheck

	o := New(record.New(client, backend.New(backendSrv.URL)), client)
	require.Len(t, o.GetRESTHandlers(), 6)

	router := mux.NewRouter()
	for _, h := range o.GetRESTHandlers() {
		router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
	}

	return &fixture{backend: op, router: router, token: acc.Token}
}

func (f *fixture) send(t *testing.T, method, path string, body interface{},
	headers map[string]string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	return rr, rr.Body.Bytes()
}

func (f *fixture) doctorHeaders() map[string]string {
	return map[string]string{
		UserIDHeader:    "10",
		UserNameHeader:  "Dr. House",
		UserRoleHeader:  "doctor",
		"Authorization": "Bearer " + f.token,
	}
}

func TestOperation(t *testing.T) {
	f := newFixture(t)

	t.Run("agent status before use", func(t *testing.T) {
		rr, body := f.send(t, http.MethodGet, AgentStatusPath, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var res cmdrecord.AgentStatusResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.False(t, res.Connected)
		require.Equal(t, agent.TaggedProtocol, res.Protocol)
	})

	t.Run("agent connect", func(t *testing.T) {
		rr, body := f.send(t, http.MethodPost, AgentConnectPath, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, string(body), `"state":"open"`)
	})

	t.Run("register public key", func(t *testing.T) {
		rr, body := f.send(t, http.MethodPost, RegisterPublicKeyPath, nil, f.doctorHeaders())
		require.Equal(t, http.StatusOK, rr.Code, string(body))

		var res cmdrecord.RegisterPublicKeyResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Equal(t, res.PublicKey, f.backend.PublicKey("10"))
	})

	var recordID string

	t.Run("create record with identity in the body", func(t *testing.T) {
		req := cmdrecord.CreateRecordRequest{
			Identity:  record.Identity{UserID: "10", FullName: "Dr. House", Token: f.token},
			PatientID: "p1",
			Fields:    record.RecordFields{VisitDate: "2024-05-01", Diagnosis: "sarcoidosis"},
		}

		rr, body := f.send(t, http.MethodPost, RecordsPath, req, nil)
		require.Equal(t, http.StatusOK, rr.Code, string(body))

		var res cmdrecord.CreateRecordResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Equal(t, record.LocallyWrapped, res.Outcome)
		require.ElementsMatch(t, []string{"20", "10"}, res.WrappedFor)

		recordID = res.RecordID.String()
	})

	t.Run("get records with identity in headers", func(t *testing.T) {
		rr, body := f.send(t, http.MethodGet, RecordsPath+"?patientUserId=20", nil, f.doctorHeaders())
		require.Equal(t, http.StatusOK, rr.Code, string(body))
		require.NotContains(t, string(body), "aesKey")

		var res cmdrecord.GetRecordsResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res.Records, 1)
		require.Equal(t, recordID, res.Records[0].ID.String())
		require.Equal(t, "sarcoidosis", res.Records[0].Fields.Diagnosis)
		require.Empty(t, res.Records[0].DecryptError)
	})

	t.Run("grant access", func(t *testing.T) {
		f.backend.SetPublicKey("30", f.backend.PublicKey("20"))

		_, body := f.send(t, http.MethodGet, RecordsPath+"?patientId=p1", nil, f.doctorHeaders())

		var res cmdrecord.GetRecordsResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res.Records, 1)

		rr, body := f.send(t, http.MethodPost, RecordsPath+"/"+recordID+"/grant", cmdrecord.GrantAccessRequest{
			EncryptedAESKey: res.Records[0].EncryptedAESKey,
			TargetUserID:    "30",
		}, f.doctorHeaders())
		require.Equal(t, http.StatusOK, rr.Code, string(body))

		stored := f.backend.Records()
		require.Len(t, stored, 1)
		require.NotEmpty(t, stored[0].Keys["30"])
	})

	t.Run("missing identity is unauthorized", func(t *testing.T) {
		rr, body := f.send(t, http.MethodGet, RecordsPath+"?patientUserId=20", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Contains(t, string(body), fmt.Sprintf(`"code":%d`, cmdrecord.NotAuthenticatedErrorCode))
	})

	t.Run("bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, RecordsPath, bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing patient is a bad request", func(t *testing.T) {
		rr, _ := f.send(t, http.MethodGet, RecordsPath, nil, f.doctorHeaders())
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("backend failure is a bad gateway", func(t *testing.T) {
		f.backend.SetFailStatus("/api/MedicalRecords", http.StatusInternalServerError)
		defer f.backend.SetFailStatus("/api/MedicalRecords", 0)

		rr, body := f.send(t, http.MethodGet, RecordsPath+"?patientUserId=20", nil, f.doctorHeaders())
		require.Equal(t, http.StatusBadGateway, rr.Code, string(body))
	})
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err    command.Error
		status int
	}{
		{command.NewValidationError(cmdrecord.NotAuthenticatedErrorCode, record.ErrNotAuthenticated),
			http.StatusUnauthorized},
		{command.NewValidationError(cmdrecord.InvalidRequestErrorCode, errors.New("bad")), http.StatusBadRequest},
		{command.NewExecuteError(cmdrecord.GetRecordsErrorCode, fmt.Errorf("x: %w", agent.ErrTimeout)),
			http.StatusGatewayTimeout},
		{command.NewExecuteError(cmdrecord.GetRecordsErrorCode, agent.ErrConnection), http.StatusServiceUnavailable},
		{command.NewExecuteError(cmdrecord.GetRecordsErrorCode, agent.ErrConnectionClosed),
			http.StatusServiceUnavailable},
		{command.NewExecuteError(cmdrecord.AgentConnectErrorCode, agent.ErrClientClosed),
			http.StatusServiceUnavailable},
		{command.NewExecuteError(cmdrecord.CreateRecordErrorCode, &backend.Error{StatusCode: 500}),
			http.StatusBadGateway},
		{command.NewExecuteError(cmdrecord.GrantAccessErrorCode, agent.ErrAgent), http.StatusBadGateway},
		{command.NewExecuteError(cmdrecord.GrantAccessErrorCode, agent.ErrProtocol), http.StatusBadGateway},
		{command.NewExecuteError(cmdrecord.GrantAccessErrorCode, record.ErrNoPublicKey),
			http.StatusInternalServerError},
	} {
		require.Equal(t, tc.status, StatusFor(tc.err), tc.err.Error())
	}
}
