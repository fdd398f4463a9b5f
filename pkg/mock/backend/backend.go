/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package backend provides an in-memory records backend served over HTTP. It is useful for testing.
package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/common/model"
	mockagent "github.com/medvault/medvault-go/pkg/mock/agent"
)

const (
	idPathVariable = "id"

	loginEndpoint          = "/api/Auth/login"
	twoFactorInitEndpoint  = "/api/Auth/two-factor/setup/initiate"
	twoFactorVerifyEndpont = "/api/Auth/two-factor/setup/verify"
	patientsEndpoint       = "/api/Patients"
	patientEndpoint        = "/api/Patients/{" + idPathVariable + "}"
	publicKeysEndpoint     = "/api/Users/publickeys"
	registerKeyEndpoint    = "/api/Users/{" + idPathVariable + "}/public-key"
	recordsEndpoint        = "/api/MedicalRecords"
	recordKeysEndpoint     = "/api/MedicalRecords/{" + idPathVariable + "}/keys"

	// ValidTOTPCode is the only code the two-factor endpoints accept.
	ValidTOTPCode = "123456"
)

// Account is a user that can log in.
type Account struct {
	User     backend.User
	Password string
	Token    string
}

// StoredRecord is a record as kept by the mock.
type StoredRecord struct {
	ID        model.ID
	Record    backend.NewRecord
	CreatedAt string
	// Keys maps user id to the record key wrapped for that user.
	Keys map[string]string
}

// MockServerOperation is a mocked records backend.
type MockServerOperation struct {
	mu           sync.Mutex
	requireToken bool
	failStatus   map[string]int
	accounts     map[string]*Account
	patients     map[string]backend.Patient
	publicKeys   map[string]string
	records      []*StoredRecord
	requestIDs   []string
}

// New returns an empty mock backend.
func New() *MockServerOperation {
	return &MockServerOperation{
		failStatus: map[string]int{},
		accounts:   map[string]*Account{},
		patients:   map[string]backend.Patient{},
		publicKeys: map[string]string{},
	}
}

// SetRequireToken makes the server reject requests without a known bearer token.
func (o *MockServerOperation) SetRequireToken(require bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requireToken = require
}

// SetFailStatus forces every request whose path starts with prefix to fail with status.
// A zero status removes the override.
func (o *MockServerOperation) SetFailStatus(prefix string, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if status == 0 {
		delete(o.failStatus, prefix)

		return
	}

	o.failStatus[prefix] = status
}

// AddAccount registers a user able to log in.
func (o *MockServerOperation) AddAccount(email, password string, user backend.User) *Account {
	o.mu.Lock()
	defer o.mu.Unlock()

	acc := &Account{User: user, Password: password, Token: uuid.New().String()}
	o.accounts[email] = acc

	return acc
}

// AddPatient registers a patient profile.
func (o *MockServerOperation) AddPatient(p backend.Patient) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.patients[p.ID.String()] = p
}

// SetPublicKey registers a public key for userID.
func (o *MockServerOperation) SetPublicKey(userID, publicKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.publicKeys[userID] = publicKey
}

// PublicKey returns the key registered for userID.
func (o *MockServerOperation) PublicKey(userID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.publicKeys[userID]
}

// Records returns a snapshot of the stored records.
func (o *MockServerOperation) Records() []StoredRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]StoredRecord, 0, len(o.records))

	for _, r := range o.records {
		cp := *r
		cp.Keys = make(map[string]string, len(r.Keys))

		for k, v := range r.Keys {
			cp.Keys[k] = v
		}

		out = append(out, cp)
	}

	return out
}

// RequestIDs returns the X-Request-ID of every request received.
func (o *MockServerOperation) RequestIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.requestIDs...)
}

// StartNewMockBackendServer starts the mock backend.
func (o *MockServerOperation) StartNewMockBackendServer() *httptest.Server {
	router := mux.NewRouter()
	router.Use(o.middleware)

	router.HandleFunc(loginEndpoint, o.login).Methods(http.MethodPost)
	router.HandleFunc(twoFactorInitEndpoint, o.twoFactorInit).Methods(http.MethodPost)
	router.HandleFunc(twoFactorVerifyEndpont, o.twoFactorVerify).Methods(http.MethodPost)
	router.HandleFunc(patientsEndpoint, o.listPatients).Methods(http.MethodGet)
	router.HandleFunc(patientEndpoint, o.getPatient).Methods(http.MethodGet)
	router.HandleFunc(publicKeysEndpoint, o.getPublicKeys).Methods(http.MethodGet)
	router.HandleFunc(registerKeyEndpoint, o.registerPublicKey).Methods(http.MethodPut)
	router.HandleFunc(recordsEndpoint, o.createRecord).Methods(http.MethodPost)
	router.HandleFunc(recordsEndpoint, o.getRecords).Methods(http.MethodGet)
	router.HandleFunc(recordKeysEndpoint, o.addRecordKey).Methods(http.MethodPost)

	return httptest.NewServer(router)
}

func (o *MockServerOperation) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		o.mu.Lock()
		o.requestIDs = append(o.requestIDs, req.Header.Get("X-Request-ID"))

		status := 0

		for prefix, code := range o.failStatus {
			if strings.HasPrefix(req.URL.Path, prefix) {
				status = code
			}
		}

		authorized := !o.requireToken || strings.HasPrefix(req.URL.Path, "/api/Auth/") ||
			o.knownTokenLocked(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
		o.mu.Unlock()

		switch {
		case status != 0:
			writeError(rw, status, "forced failure")
		case !authorized:
			writeError(rw, http.StatusUnauthorized, "missing or invalid token")
		default:
			next.ServeHTTP(rw, req)
		}
	})
}

func (o *MockServerOperation) knownTokenLocked(token string) bool {
	for _, acc := range o.accounts {
		if token != "" && acc.Token == token {
			return true
		}
	}

	return false
}

func (o *MockServerOperation) login(rw http.ResponseWriter, req *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if !decode(rw, req, &creds) {
		return
	}

	o.mu.Lock()
	acc, ok := o.accounts[creds.Email]
	o.mu.Unlock()

	if !ok || acc.Password != creds.Password {
		writeError(rw, http.StatusUnauthorized, "Invalid email or password")

		return
	}

	user := acc.User
	writeJSON(rw, http.StatusOK, backend.LoginResult{User: &user, Token: acc.Token})
}

func (o *MockServerOperation) twoFactorInit(rw http.ResponseWriter, req *http.Request) {
	var in struct {
		Email string `json:"email"`
	}

	if !decode(rw, req, &in) {
		return
	}

	writeJSON(rw, http.StatusOK, backend.TwoFactorSetup{
		Secret:         "JBSWY3DPEHPK3PXP",
		TOTPURL:        "otpauth://totp/medvault:" + in.Email + "?secret=JBSWY3DPEHPK3PXP",
		ManualEntryKey: "JBSW Y3DP EHPK 3PXP",
	})
}

func (o *MockServerOperation) twoFactorVerify(rw http.ResponseWriter, req *http.Request) {
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}

	if !decode(rw, req, &in) {
		return
	}

	o.mu.Lock()
	acc, ok := o.accounts[in.Email]
	o.mu.Unlock()

	if !ok || in.Code != ValidTOTPCode {
		writeError(rw, http.StatusUnauthorized, "Invalid code")

		return
	}

	user := acc.User
	writeJSON(rw, http.StatusOK, backend.TwoFactorResult{Token: acc.Token, User: &user})
}

func (o *MockServerOperation) listPatients(rw http.ResponseWriter, _ *http.Request) {
	o.mu.Lock()
	out := make([]backend.Patient, 0, len(o.patients))

	for _, p := range o.patients {
		out = append(out, p)
	}
	o.mu.Unlock()

	writeJSON(rw, http.StatusOK, out)
}

func (o *MockServerOperation) getPatient(rw http.ResponseWriter, req *http.Request) {
	o.mu.Lock()
	p, ok := o.patients[mux.Vars(req)[idPathVariable]]
	o.mu.Unlock()

	if !ok {
		writeError(rw, http.StatusNotFound, "Patient not found")

		return
	}

	writeJSON(rw, http.StatusOK, p)
}

func (o *MockServerOperation) getPublicKeys(rw http.ResponseWriter, req *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := []backend.PublicKey{}

	for _, id := range strings.Split(req.URL.Query().Get("userIds"), ",") {
		if pk, ok := o.publicKeys[id]; ok && id != "" {
			out = append(out, backend.PublicKey{UserID: model.ID(id), PublicKey: pk})
		}
	}

	writeJSON(rw, http.StatusOK, out)
}

func (o *MockServerOperation) registerPublicKey(rw http.ResponseWriter, req *http.Request) {
	var in struct {
		PublicKey string `json:"publicKey"`
	}

	if !decode(rw, req, &in) {
		return
	}

	if in.PublicKey == "" {
		writeError(rw, http.StatusBadRequest, "publicKey is required")

		return
	}

	o.SetPublicKey(mux.Vars(req)[idPathVariable], in.PublicKey)

	writeJSON(rw, http.StatusOK, map[string]string{"message": "Public key updated"})
}

func (o *MockServerOperation) createRecord(rw http.ResponseWriter, req *http.Request) {
	var in backend.NewRecord

	if !decode(rw, req, &in) {
		return
	}

	rec := &StoredRecord{
		ID:        model.ID(uuid.New().String()),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Keys:      map[string]string{},
	}

	for _, k := range in.EncryptedKeys {
		rec.Keys[k.UserID.String()] = k.EncryptedAESKey
	}

	if in.ServerSideWrap {
		if in.AESKey == "" {
			writeError(rw, http.StatusBadRequest, "aesKey is required for server side wrapping")

			return
		}

		// wrap for every reader with a registered key, as the real backend does
		for _, userID := range []model.ID{in.PatientUserID, in.DoctorUserID} {
			pk := o.PublicKey(userID.String())
			if pk == "" {
				continue
			}

			wrapped, err := mockagent.WrapKey(in.AESKey, pk)
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err.Error())

				return
			}

			rec.Keys[userID.String()] = wrapped
		}
	}

	rec.Record = in
	// the plaintext key is never kept
	rec.Record.AESKey = ""

	o.mu.Lock()
	o.records = append(o.records, rec)
	o.mu.Unlock()

	writeJSON(rw, http.StatusCreated, backend.CreatedRecord{ID: rec.ID, CreatedAt: rec.CreatedAt})
}

func (o *MockServerOperation) getRecords(rw http.ResponseWriter, req *http.Request) {
	userID := req.URL.Query().Get("userId")
	keyUserID := req.URL.Query().Get("keyUserId")

	o.mu.Lock()
	defer o.mu.Unlock()

	out := []backend.Record{}

	for _, r := range o.records {
		if r.Record.PatientUserID.String() != userID {
			continue
		}

		out = append(out, backend.Record{
			ID:            r.ID,
			Description:   r.Record.EncryptedDescription,
			EncryptedKey:  r.Keys[keyUserID],
			PatientUserID: r.Record.PatientUserID,
			DoctorUserID:  r.Record.DoctorUserID,
			CreatedAt:     r.CreatedAt,
		})
	}

	writeJSON(rw, http.StatusOK, out)
}

func (o *MockServerOperation) addRecordKey(rw http.ResponseWriter, req *http.Request) {
	var in backend.WrappedKey

	if !decode(rw, req, &in) {
		return
	}

	id := mux.Vars(req)[idPathVariable]

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range o.records {
		if r.ID.String() == id {
			r.Keys[in.UserID.String()] = in.EncryptedAESKey
			rw.WriteHeader(http.StatusNoContent)

			return
		}
	}

	writeError(rw, http.StatusNotFound, "Record not found")
}

func decode(rw http.ResponseWriter, req *http.Request, v interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid request body: "+err.Error())

		return false
	}

	return true
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		panic(err)
	}
}

func writeError(rw http.ResponseWriter, status int, message string) {
	writeJSON(rw, status, map[string]string{"message": message})
}
