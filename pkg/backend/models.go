/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package backend

import "github.com/medvault/medvault-go/pkg/common/model"

// User is an account as returned by the auth endpoints.
type User struct {
	ID        model.ID `json:"id"`
	Email     string   `json:"email,omitempty"`
	FullName  string   `json:"fullName,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Role      string   `json:"role,omitempty"`
}

// LoginResult is the answer to a password login.
type LoginResult struct {
	User                   *User  `json:"user,omitempty"`
	Token                  string `json:"token,omitempty"`
	RequiresTwoFactorSetup bool   `json:"requiresTwoFactorSetup"`
	RequiresTwoFactorCode  bool   `json:"requiresTwoFactorCode"`
	Message                string `json:"message,omitempty"`
}

// TwoFactorSetup holds the TOTP enrollment material.
type TwoFactorSetup struct {
	Secret         string `json:"secret"`
	TOTPURL        string `json:"totpUrl"`
	ManualEntryKey string `json:"manualEntryKey"`
}

// TwoFactorResult is returned once a TOTP code is accepted.
type TwoFactorResult struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Patient is a patient profile. UserID is the account the patient's records are keyed to.
type Patient struct {
	ID               model.ID `json:"id"`
	UserID           model.ID `json:"userId"`
	FirstName        string   `json:"firstName,omitempty"`
	LastName         string   `json:"lastName,omitempty"`
	Email            string   `json:"email,omitempty"`
	PhoneNumber      string   `json:"phoneNumber,omitempty"`
	DateOfBirth      string   `json:"dateOfBirth,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	Address          string   `json:"address,omitempty"`
	BloodType        string   `json:"bloodType,omitempty"`
	Allergies        string   `json:"allergies,omitempty"`
	EmergencyContact string   `json:"emergencyContact,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
}

// PublicKey is a registered user public key.
type PublicKey struct {
	UserID    model.ID `json:"userId"`
	PublicKey string   `json:"publicKey"`
}

// WrappedKey is the record key wrapped for one user.
type WrappedKey struct {
	UserID          model.ID `json:"userId"`
	EncryptedAESKey string   `json:"encryptedAESKey"`
}

// NewRecord is the body of a record creation.
type NewRecord struct {
	Date                 string       `json:"date"`
	EncryptedDescription string       `json:"encryptedDescription"`
	EncryptedPdfData     string       `json:"encryptedPdfData"`
	PatientUserID        model.ID     `json:"patientUserId"`
	DoctorUserID         model.ID     `json:"doctorUserId"`
	EncryptedKeys        []WrappedKey `json:"encryptedKeys"`
	// ServerSideWrap asks the backend to wrap AESKey for the record readers.
	ServerSideWrap bool   `json:"serverSideWrap"`
	AESKey         string `json:"aesKey,omitempty"`
}

// CreatedRecord is the backend's answer to a record creation.
type CreatedRecord struct {
	ID        model.ID `json:"id"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Doctor is the author profile attached to a record.
type Doctor struct {
	ID            model.ID `json:"id"`
	UserID        model.ID `json:"userId"`
	Specialty     string   `json:"specialty,omitempty"`
	LicenseNumber string   `json:"licenseNumber,omitempty"`
	FirstName     string   `json:"firstName,omitempty"`
	LastName      string   `json:"lastName,omitempty"`
	FullName      string   `json:"fullName,omitempty"`
}

// Name returns the display name of the doctor.
func (d *Doctor) Name() string {
	if d.FirstName != "" && d.LastName != "" {
		return d.FirstName + " " + d.LastName
	}

	return d.FullName
}

// Record is a stored record as seen by one reader. Description is the sealed
// body and EncryptedKey the record key wrapped for that reader.
type Record struct {
	ID            model.ID `json:"id"`
	Description   string   `json:"description"`
	EncryptedKey  string   `json:"encryptedKey"`
	PatientUserID model.ID `json:"patientUserId"`
	DoctorUserID  model.ID `json:"doctorUserId"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	Doctor        *Doctor  `json:"doctor,omitempty"`
}
