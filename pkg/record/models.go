/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"fmt"

	"github.com/medvault/medvault-go/pkg/common/model"
)

// Identity is the caller on whose behalf an operation runs.
type Identity struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role,omitempty"`
	// Token is the backend bearer token.
	Token string `json:"token,omitempty"`
}

// Authenticated reports whether the identity names a user.
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// RecordFields is the sealed part of a medical record.
type RecordFields struct {
	VisitDate  string `json:"visitDate" mapstructure:"visitDate"`
	Diagnosis  string `json:"diagnosis" mapstructure:"diagnosis"`
	Symptoms   string `json:"symptoms" mapstructure:"symptoms"`
	Treatment  string `json:"treatment" mapstructure:"treatment"`
	Notes      string `json:"notes" mapstructure:"notes"`
	Reason     string `json:"reason" mapstructure:"reason"`
	DoctorName string `json:"doctorName" mapstructure:"doctorName"`
	DoctorRole string `json:"doctorRole" mapstructure:"doctorRole"`
}

// Outcome tells how the record key of a new record was protected.
type Outcome int

const (
	// LocallyWrapped means the agent wrapped the key for every reader with a registered key.
	LocallyWrapped Outcome = iota
	// ServerWrapPending means the backend was asked to wrap the key.
	ServerWrapPending
)

func (o Outcome) String() string {
	switch o {
	case LocallyWrapped:
		return "locally-wrapped"
	case ServerWrapPending:
		return "server-wrap-pending"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "locally-wrapped":
		*o = LocallyWrapped
	case "server-wrap-pending":
		*o = ServerWrapPending
	default:
		return fmt.Errorf("unknown record outcome %q", text)
	}

	return nil
}

// CreateResult describes a stored record.
type CreateResult struct {
	RecordID  model.ID `json:"recordId"`
	CreatedAt string   `json:"createdAt,omitempty"`
	Outcome   Outcome  `json:"outcome"`
	// WrappedFor lists the users the key was wrapped for locally.
	WrappedFor []string `json:"wrappedFor"`
}

// DecryptedMedicalRecord is a record with its sealed fields opened. It only lives in memory.
type DecryptedMedicalRecord struct {
	ID              model.ID     `json:"id"`
	PatientUserID   model.ID     `json:"patientUserId"`
	DoctorUserID    model.ID     `json:"doctorUserId"`
	DoctorName      string       `json:"doctorName,omitempty"`
	CreatedAt       string       `json:"createdAt,omitempty"`
	EncryptedAESKey string       `json:"encryptedAESKey,omitempty"`
	AESKey          string       `json:"-"`
	Fields          RecordFields `json:"fields"`
	// DecryptError is set when this record could not be opened.
	DecryptError string `json:"decryptError,omitempty"`
}
