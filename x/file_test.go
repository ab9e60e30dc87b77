/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "state.bin")

	require.NoError(t, WriteFileAtomic(name, []byte("first"), 0644))
	require.NoError(t, WriteFileAtomic(name, []byte("second"), 0644))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	_, err = os.Stat(name + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestReadFileIfExists(t *testing.T) {
	dir := t.TempDir()
	data, err := ReadFileIfExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Nil(t, data)

	name := filepath.Join(dir, "present")
	require.NoError(t, WriteFileSync(name, []byte{1, 2, 3}, 0600))
	data, err = ReadFileIfExists(name)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}
