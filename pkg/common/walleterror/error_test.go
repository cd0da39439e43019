/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package walleterror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"validation", NewValidation("bad did"), KindValidation},
		{"resolution", NewResolution("no endpoint"), KindResolution},
		{"crypto", NewCrypto("tag mismatch"), KindCrypto},
		{"network", NewNetwork("status 500"), KindNetwork},
		{"protocol", NewProtocol("wrong type"), KindProtocol},
		{"unclassified", errors.New("plain"), KindUnknown},
		{"wrapped deeper", fmt.Errorf("outer: %w", NewProtocol("inner")), KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")

	err := Wrap(KindNetwork, cause, "post envelope")
	require.Error(t, err)
	require.True(t, errors.Is(err, cause))
	require.True(t, IsKind(err, KindNetwork))
	require.Contains(t, err.Error(), "post envelope")
	require.Contains(t, err.Error(), "connection refused")
}

func TestWrapNilCause(t *testing.T) {
	require.Nil(t, Wrap(KindNetwork, nil, "nothing happened"))
}
