/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package walletcore implements the identity and messaging core of a
// DIDComm v2 wallet: peer DID creation and resolution, PIN-protected key
// storage and the mediated messaging protocols (coordinate-mediation,
// routing and message pickup).
//
// Packages for end developer usage
//
// pkg/framework/context: Provider wiring for the protocol clients. Build a
// context from provider options and pass it to each client's New func.
//
// pkg/vdr/peer: Creates did:peer identities (methods 0 through 4) and
// resolves the self-describing forms back into DID documents.
//
// pkg/didcomm/protocol/mediator: Runs the coordinate-mediation handshake
// against a mediator and registers recipient DIDs on its keylist.
//
// pkg/didcomm/protocol/route: Forwards encrypted basic messages through a
// recipient's mediator.
//
// pkg/didcomm/protocol/messagepickup: Polls a mediator for queued messages
// and stores the retrieved plaintexts.
//
// Basic workflow
//
//      1) Create a peer identity with pkg/vdr/peer and wrap its keys under a
//         PIN with pkg/store.WrapIdentity.
//      2) Build a context with pkg/framework/context provider options.
//      3) Request mediation, update the keylist, then route and pick up
//         messages through the protocol clients.
package walletcore
