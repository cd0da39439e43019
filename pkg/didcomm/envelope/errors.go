/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package envelope

import "github.com/trustbloc/walletcore/pkg/common/walleterror"

// ErrSecretNotFound is returned when a secrets resolver has no material for
// the requested key ID.
var ErrSecretNotFound = walleterror.NewCrypto("secret not found for kid")
