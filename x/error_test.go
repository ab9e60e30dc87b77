/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestStoreErrKeepsCause(t *testing.T) {
	err := StoreErr(io.ErrUnexpectedEOF, "read record %d", 7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStoreIndex))
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	require.Contains(t, err.Error(), "read record 7")

	var se *StoreIndexError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "read record 7", se.Op)
	require.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err))
}

func TestStoreErrNilAndNested(t *testing.T) {
	require.NoError(t, StoreErr(nil, "noop"))

	inner := StoreErr(io.EOF, "inner")
	outer := StoreErr(errors.Wrap(inner, "context"), "outer")
	var se *StoreIndexError
	require.True(t, errors.As(outer, &se))
	require.Equal(t, "inner", se.Op)
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("level %d outside [0, %d]", 16, 15)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	require.False(t, errors.Is(err, ErrOutOfRange))
	require.Contains(t, err.Error(), "level 16")
}
