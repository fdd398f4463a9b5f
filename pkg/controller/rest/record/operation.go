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
	"strings"

	"github.com/gorilla/mux"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/controller/command"
	cmdrecord "github.com/medvault/medvault-go/pkg/controller/command/record"
	"github.com/medvault/medvault-go/pkg/controller/internal/cmdutil"
	"github.com/medvault/medvault-go/pkg/controller/rest"
	"github.com/medvault/medvault-go/pkg/record"
)

// constants for record operations.
const (
	RecordsPath           = "/records"
	GrantAccessPath       = RecordsPath + "/{id}/grant"
	RegisterPublicKeyPath = "/publickey/register"
	AgentOperationID      = "/agent"
	AgentStatusPath       = AgentOperationID + "/status"
	AgentConnectPath      = AgentOperationID + "/connect"
)

// Identity headers, read when a request body carries no identity.
const (
	UserIDHeader   = "X-User-Id"
	UserNameHeader = "X-User-Name"
	UserRoleHeader = "X-User-Role"
)

type recordCommand interface {
	CreateRecord(rw io.Writer, req io.Reader) command.Error
	GetRecords(rw io.Writer, req io.Reader) command.Error
	GrantAccess(rw io.Writer, req io.Reader) command.Error
	RegisterPublicKey(rw io.Writer, req io.Reader) command.Error
	AgentStatus(rw io.Writer, req io.Reader) command.Error
	AgentConnect(rw io.Writer, req io.Reader) command.Error
}

// Operation contains the record operations provided by the controller REST API.
type Operation struct {
	handlers []rest.Handler
	command  recordCommand
}

// New returns new record operations rest client instance.
func New(svc cmdrecord.Service, a cmdrecord.Agent) *Operation {
	o := &Operation{command: cmdrecord.New(svc, a)}
	o.registerHandler()

	return o
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

// registerHandler register handlers to be exposed from this service as REST API endpoints.
func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(RecordsPath, http.MethodPost, o.CreateRecord),
		cmdutil.NewHTTPHandler(RecordsPath, http.MethodGet, o.GetRecords),
		cmdutil.NewHTTPHandler(GrantAccessPath, http.MethodPost, o.GrantAccess),
		cmdutil.NewHTTPHandler(RegisterPublicKeyPath, http.MethodPost, o.RegisterPublicKey),
		cmdutil.NewHTTPHandler(AgentStatusPath, http.MethodGet, o.AgentStatus),
		cmdutil.NewHTTPHandler(AgentConnectPath, http.MethodPost, o.AgentConnect),
	}
}

// CreateRecord swagger:route POST /records record createRecord
//
// Seals a medical record and stores it for the patient, the caller and any extra readers.
//
// Responses:
//    default: genericError
//        200: createRecordResponse
func (o *Operation) CreateRecord(rw http.ResponseWriter, req *http.Request) {
	var request cmdrecord.CreateRecordRequest

	if !decodeBody(rw, req, &request) {
		return
	}

	identityFromHeaders(req, &request.Identity)

	o.execute(o.command.CreateRecord, rw, &request)
}

// GetRecords swagger:route GET /records record getRecords
//
// Fetches the records of a patient and opens them with the caller's keys.
//
// Responses:
//    default: genericError
//        200: getRecordsResponse
func (o *Operation) GetRecords(rw http.ResponseWriter, req *http.Request) {
	request := cmdrecord.GetRecordsRequest{
		PatientUserID: req.URL.Query().Get("patientUserId"),
		PatientID:     req.URL.Query().Get("patientId"),
	}

	identityFromHeaders(req, &request.Identity)

	o.execute(o.command.GetRecords, rw, &request)
}

// GrantAccess swagger:route POST /records/{id}/grant record grantAccess
//
// Gives another user access to a record.
//
// Responses:
//    default: genericError
func (o *Operation) GrantAccess(rw http.ResponseWriter, req *http.Request) {
	var request cmdrecord.GrantAccessRequest

	if !decodeBody(rw, req, &request) {
		return
	}

	request.RecordID = mux.Vars(req)["id"]

	identityFromHeaders(req, &request.Identity)

	o.execute(o.command.GrantAccess, rw, &request)
}

// RegisterPublicKey swagger:route POST /publickey/register record registerPublicKey
//
// Registers the local agent's public key for the caller.
//
// Responses:
//    default: genericError
//        200: registerPublicKeyResponse
func (o *Operation) RegisterPublicKey(rw http.ResponseWriter, req *http.Request) {
	var request cmdrecord.RegisterPublicKeyRequest

	if !decodeBody(rw, req, &request) {
		return
	}

	identityFromHeaders(req, &request.Identity)

	o.execute(o.command.RegisterPublicKey, rw, &request)
}

// AgentStatus swagger:route GET /agent/status agent agentStatus
//
// Reports the local agent connection.
//
// Responses:
//    default: genericError
//        200: agentStatusResponse
func (o *Operation) AgentStatus(rw http.ResponseWriter, _ *http.Request) {
	rest.ExecuteWithStatus(o.command.AgentStatus, rw, nil, StatusFor)
}

// AgentConnect swagger:route POST /agent/connect agent agentConnect
//
// Connects to the local agent.
//
// Responses:
//    default: genericError
//        200: agentStatusResponse
func (o *Operation) AgentConnect(rw http.ResponseWriter, _ *http.Request) {
	rest.ExecuteWithStatus(o.command.AgentConnect, rw, nil, StatusFor)
}

func (o *Operation) execute(exec command.Exec, rw http.ResponseWriter, request interface{}) {
	reqBytes, err := json.Marshal(request)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, cmdrecord.InvalidRequestErrorCode, err)

		return
	}

	rest.ExecuteWithStatus(exec, rw, bytes.NewBuffer(reqBytes), StatusFor)
}

// StatusFor maps record command errors to HTTP statuses.
func StatusFor(err command.Error) int {
	switch {
	case err.Code() == cmdrecord.NotAuthenticatedErrorCode:
		return http.StatusUnauthorized
	case err.Type() == command.ValidationError:
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrConnection), errors.Is(err, agent.ErrConnectionClosed),
		errors.Is(err, agent.ErrClientClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrBackend), errors.Is(err, agent.ErrAgent), errors.Is(err, agent.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body into v.
func decodeBody(rw http.ResponseWriter, req *http.Request, v interface{}) bool {
	if req.Body == nil {
		return true
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, cmdrecord.InvalidRequestErrorCode,
			fmt.Errorf("failed to read request body: %w", err))

		return false
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}

	if err := json.Unmarshal(body, v); err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, cmdrecord.InvalidRequestErrorCode,
			fmt.Errorf("failed request decode : %w", err))

		return false
	}

	return true
}

// identityFromHeaders fills an identity the body left empty.
func identityFromHeaders(req *http.Request, id *record.Identity) {
	if id.UserID != "" {
		return
	}

	id.UserID = req.Header.Get(UserIDHeader)
	id.FullName = req.Header.Get(UserNameHeader)
	id.Role = req.Header.Get(UserRoleHeader)

	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		id.Token = strings.TrimPrefix(auth, "Bearer ")
	}
}
