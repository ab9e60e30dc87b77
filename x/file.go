/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// WriteFileSync is the same as os.WriteFile, but syncs the data before closing.
func WriteFileSync(filename string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteFileAtomic writes data next to filename, syncs it and renames it into
// place, so readers see either the old or the new content.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp := filename + ".tmp"
	if err := WriteFileSync(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "while writing %s", tmp)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "while renaming %s", tmp)
	}
	if d, err := os.Open(filepath.Dir(filename)); err == nil {
		if err := d.Sync(); err != nil {
			glog.V(2).Infof("fsync of %s failed: %v", filepath.Dir(filename), err)
		}
		_ = d.Close()
	}
	return nil
}

// ReadFileIfExists returns the content of filename, or nil if it does not exist.
func ReadFileIfExists(filename string) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
