/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"github.com/medvault/medvault-go/pkg/record"
)

// CreateRecordRequest model
//
// This is used for creating a protected medical record.
type CreateRecordRequest struct {
	Identity record.Identity `json:"identity"`

	// PatientUserID is the user account the record belongs to.
	PatientUserID string `json:"patientUserId,omitempty"`

	// PatientID is resolved to PatientUserID when the latter is empty.
	PatientID string `json:"patientId,omitempty"`

	// Readers are extra users the record key is wrapped for.
	Readers []string `json:"readers,omitempty"`

	Fields record.RecordFields `json:"fields"`
}

// CreateRecordResponse model
//
// This is used for returning the stored record.
type CreateRecordResponse struct {
	*record.CreateResult
}

// GetRecordsRequest model
//
// This is used for fetching and opening the records of a patient.
type GetRecordsRequest struct {
	Identity      record.Identity `json:"identity"`
	PatientUserID string          `json:"patientUserId,omitempty"`
	PatientID     string          `json:"patientId,omitempty"`
}

// GetRecordsResponse model
//
// This is used for returning opened records.
type GetRecordsResponse struct {
	Records []*record.DecryptedMedicalRecord `json:"records"`
}

// GrantAccessRequest model
//
// This is used for sharing a record with another user.
type GrantAccessRequest struct {
	Identity record.Identity `json:"identity"`
	RecordID string          `json:"recordId"`

	// EncryptedAESKey is the record key as wrapped for the caller.
	EncryptedAESKey string `json:"encryptedAESKey"`
	TargetUserID    string `json:"targetUserId"`
}

// RegisterPublicKeyRequest model
//
// This is used for registering the local agent key of the caller.
type RegisterPublicKeyRequest struct {
	Identity record.Identity `json:"identity"`
}

// RegisterPublicKeyResponse model
//
// This is used for returning the registered key.
type RegisterPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// AgentStatusResponse model
//
// This is used for reporting the local agent connection.
type AgentStatusResponse struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Protocol  string `json:"protocol"`
}
