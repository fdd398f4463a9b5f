/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/common/log"
	"github.com/medvault/medvault-go/pkg/controller/command"
	"github.com/medvault/medvault-go/pkg/controller/internal/cmdutil"
	"github.com/medvault/medvault-go/pkg/internal/logutil"
	"github.com/medvault/medvault-go/pkg/record"
)

var logger = log.New("medvault/command/record")

// Error codes.
const (
	// InvalidRequestErrorCode is typically a code for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Record)
	// NotAuthenticatedErrorCode is for requests without a caller identity.
	NotAuthenticatedErrorCode
	// CreateRecordErrorCode is for failures while creating a record.
	CreateRecordErrorCode
	// GetRecordsErrorCode is for failures while fetching or opening records.
	GetRecordsErrorCode
	// GrantAccessErrorCode is for failures while sharing a record.
	GrantAccessErrorCode
	// RegisterPublicKeyErrorCode is for failures while registering the agent key.
	RegisterPublicKeyErrorCode
	// ResolvePatientErrorCode is for failures while resolving a patient profile.
	ResolvePatientErrorCode
)

// Agent error codes.
const (
	// AgentConnectErrorCode is for failures while connecting to the local agent.
	AgentConnectErrorCode = command.Code(iota + command.Agent)
)

// constants for record commands.
const (
	// command name.
	CommandName = "record"

	// command methods.
	CreateRecordCommandMethod      = "CreateRecord"
	GetRecordsCommandMethod        = "GetRecords"
	GrantAccessCommandMethod       = "GrantAccess"
	RegisterPublicKeyCommandMethod = "RegisterPublicKey"
	AgentStatusCommandMethod       = "AgentStatus"
	AgentConnectCommandMethod      = "AgentConnect"

	// error messages.
	errEmptyPatient  = "patient user id or patient id is mandatory"
	errEmptyRecordID = "record id is mandatory"
	errEmptyKey      = "encrypted AES key is mandatory"
	errEmptyTarget   = "target user id is mandatory"

	patientUserIDString = "patientUserId"
	recordIDString      = "recordId"
)

// Service is the record workflow the commands run.
type Service interface {
	CreateRecord(ctx context.Context, id record.Identity, fields record.RecordFields, patientUserID string,
		extraReaders ...string) (*record.CreateResult, error)
	FetchAndDecryptRecords(ctx context.Context, id record.Identity,
		patientUserID string) ([]*record.DecryptedMedicalRecord, error)
	GrantAccess(ctx context.Context, id record.Identity, recordID, wrappedKeyForCurrentUser, targetUserID string) error
	RegisterLocalPublicKey(ctx context.Context, id record.Identity) (string, error)
	ResolvePatientUserID(ctx context.Context, id record.Identity, patientID string) (string, error)
}

// Agent is the local agent connection reported and driven by the commands.
type Agent interface {
	URL() string
	Protocol() string
	State() agent.State
	Connect(ctx context.Context) error
}

// Command contains command operations provided by the record controller.
type Command struct {
	svc   Service
	agent Agent
}

// New returns new record command instance.
func New(svc Service, a Agent) *Command {
	return &Command{svc: svc, agent: a}
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, CreateRecordCommandMethod, c.CreateRecord),
		cmdutil.NewCommandHandler(CommandName, GetRecordsCommandMethod, c.GetRecords),
		cmdutil.NewCommandHandler(CommandName, GrantAccessCommandMethod, c.GrantAccess),
		cmdutil.NewCommandHandler(CommandName, RegisterPublicKeyCommandMethod, c.RegisterPublicKey),
		cmdutil.NewCommandHandler(CommandName, AgentStatusCommandMethod, c.AgentStatus),
		cmdutil.NewCommandHandler(CommandName, AgentConnectCommandMethod, c.AgentConnect),
	}
}

// CreateRecord seals a record and stores it for the patient and the caller.
func (c *Command) CreateRecord(rw io.Writer, req io.Reader) command.Error {
	var request CreateRecordRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, CreateRecordCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if cmdErr := validateIdentity(request.Identity, CreateRecordCommandMethod); cmdErr != nil {
		return cmdErr
	}

	ctx := context.Background()

	patientUserID, cmdErr := c.patientUserID(ctx, request.Identity, request.PatientUserID, request.PatientID,
		CreateRecordCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	res, err := c.svc.CreateRecord(ctx, request.Identity, request.Fields, patientUserID, request.Readers...)
	if err != nil {
		logutil.LogError(logger, CommandName, CreateRecordCommandMethod, err.Error(),
			logutil.CreateKeyValueString(patientUserIDString, patientUserID))

		return toCommandError(CreateRecordErrorCode, err)
	}

	command.WriteNillableResponse(rw, &CreateRecordResponse{CreateResult: res}, logger)

	logutil.LogDebug(logger, CommandName, CreateRecordCommandMethod, "success",
		logutil.CreateKeyValueString(recordIDString, res.RecordID.String()))

	return nil
}

// GetRecords returns the patient's records opened with the caller's keys.
func (c *Command) GetRecords(rw io.Writer, req io.Reader) command.Error {
	var request GetRecordsRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, GetRecordsCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if cmdErr := validateIdentity(request.Identity, GetRecordsCommandMethod); cmdErr != nil {
		return cmdErr
	}

	ctx := context.Background()

	patientUserID, cmdErr := c.patientUserID(ctx, request.Identity, request.PatientUserID, request.PatientID,
		GetRecordsCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	records, err := c.svc.FetchAndDecryptRecords(ctx, request.Identity, patientUserID)
	if err != nil {
		logutil.LogError(logger, CommandName, GetRecordsCommandMethod, err.Error(),
			logutil.CreateKeyValueString(patientUserIDString, patientUserID))

		return toCommandError(GetRecordsErrorCode, err)
	}

	command.WriteNillableResponse(rw, &GetRecordsResponse{Records: records}, logger)

	logutil.LogDebug(logger, CommandName, GetRecordsCommandMethod, "success")

	return nil
}

// GrantAccess re-wraps the caller's record key for another user.
func (c *Command) GrantAccess(rw io.Writer, req io.Reader) command.Error {
	var request GrantAccessRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, GrantAccessCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if cmdErr := validateIdentity(request.Identity, GrantAccessCommandMethod); cmdErr != nil {
		return cmdErr
	}

	var missing string

	switch {
	case request.RecordID == "":
		missing = errEmptyRecordID
	case request.EncryptedAESKey == "":
		missing = errEmptyKey
	case request.TargetUserID == "":
		missing = errEmptyTarget
	}

	if missing != "" {
		logutil.LogDebug(logger, CommandName, GrantAccessCommandMethod, missing)

		return command.NewValidationError(InvalidRequestErrorCode, errors.New(missing))
	}

	err := c.svc.GrantAccess(context.Background(), request.Identity, request.RecordID, request.EncryptedAESKey,
		request.TargetUserID)
	if err != nil {
		logutil.LogError(logger, CommandName, GrantAccessCommandMethod, err.Error(),
			logutil.CreateKeyValueString(recordIDString, request.RecordID))

		return toCommandError(GrantAccessErrorCode, err)
	}

	command.WriteNillableResponse(rw, nil, logger)

	logutil.LogDebug(logger, CommandName, GrantAccessCommandMethod, "success",
		logutil.CreateKeyValueString(recordIDString, request.RecordID))

	return nil
}

// RegisterPublicKey registers the local agent's public key for the caller.
func (c *Command) RegisterPublicKey(rw io.Writer, req io.Reader) command.Error {
	var request RegisterPublicKeyRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, RegisterPublicKeyCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if cmdErr := validateIdentity(request.Identity, RegisterPublicKeyCommandMethod); cmdErr != nil {
		return cmdErr
	}

	publicKey, err := c.svc.RegisterLocalPublicKey(context.Background(), request.Identity)
	if err != nil {
		logutil.LogError(logger, CommandName, RegisterPublicKeyCommandMethod, err.Error())

		return toCommandError(RegisterPublicKeyErrorCode, err)
	}

	command.WriteNillableResponse(rw, &RegisterPublicKeyResponse{PublicKey: publicKey}, logger)

	logutil.LogDebug(logger, CommandName, RegisterPublicKeyCommandMethod, "success")

	return nil
}

// AgentStatus reports the local agent connection.
func (c *Command) AgentStatus(rw io.Writer, _ io.Reader) command.Error {
	command.WriteNillableResponse(rw, c.status(), logger)

	return nil
}

// AgentConnect opens the local agent connection if needed and reports it.
func (c *Command) AgentConnect(rw io.Writer, _ io.Reader) command.Error {
	if err := c.agent.Connect(context.Background()); err != nil {
		logutil.LogError(logger, CommandName, AgentConnectCommandMethod, err.Error())

		return command.NewExecuteError(AgentConnectErrorCode, err)
	}

	command.WriteNillableResponse(rw, c.status(), logger)

	logutil.LogDebug(logger, CommandName, AgentConnectCommandMethod, "success")

	return nil
}

func (c *Command) status() *AgentStatusResponse {
	state := c.agent.State()

	return &AgentStatusResponse{
		State:     state.String(),
		Connected: state == agent.StateOpen,
		URL:       c.agent.URL(),
		Protocol:  c.agent.Protocol(),
	}
}

func (c *Command) patientUserID(ctx context.Context, id record.Identity, patientUserID, patientID,
	method string) (string, command.Error) {
	if patientUserID != "" {
		return patientUserID, nil
	}

	if patientID == "" {
		logutil.LogDebug(logger, CommandName, method, errEmptyPatient)

		return "", command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyPatient))
	}

	resolved, err := c.svc.ResolvePatientUserID(ctx, id, patientID)
	if err != nil {
		logutil.LogError(logger, CommandName, method, err.Error(),
			logutil.CreateKeyValueString("patientId", patientID))

		return "", toCommandError(ResolvePatientErrorCode, err)
	}

	return resolved, nil
}

func validateIdentity(id record.Identity, method string) command.Error {
	if id.Authenticated() {
		return nil
	}

	logutil.LogInfo(logger, CommandName, method, record.ErrNotAuthenticated.Error())

	return command.NewValidationError(NotAuthenticatedErrorCode, record.ErrNotAuthenticated)
}

func toCommandError(code command.Code, err error) command.Error {
	switch {
	case errors.Is(err, record.ErrNotAuthenticated):
		return command.NewValidationError(NotAuthenticatedErrorCode, err)
	case errors.Is(err, record.ErrInvalidInput):
		return command.NewValidationError(InvalidRequestErrorCode, err)
	default:
		return command.NewExecuteError(code, err)
	}
}
