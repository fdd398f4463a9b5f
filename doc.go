/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package medvault keeps medical records readable only by the users they were shared with.
//
// Each record body is sealed with a fresh AES-256 key. That key is wrapped for every reader with
// the RSA public key held by the reader's local key agent, so the backend only stores ciphertext.
//
// Packages for end developer usage
//
// pkg/crypto/envelope: AES-256-CBC sealing of record bodies.
//
// pkg/agent: Client for the local key agent, with pkg/agent/ws as the websocket transport.
//
// pkg/backend: Client for the records backend REST API.
//
// pkg/record: The record workflow: create, fetch and decrypt, grant access, register keys.
//
// pkg/controller/rest/record: The workflow exposed over REST, served by cmd/medvault-rest.
//
// Basic workflow
//
//      1) Create an agent client with agent.New and a backend client with backend.New.
//      2) Create the workflow with record.New.
//      3) Call RegisterLocalPublicKey once per user.
//      4) Call CreateRecord, FetchAndDecryptRecords and GrantAccess.
//      5) Call Close on the agent client to release the connection.
package medvault
