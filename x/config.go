/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"os"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

// Options stores the options for this package.
type Options struct {
	// DebugMode turns on expensive invariant checks after every index mutation.
	DebugMode bool
}

// Config stores the global instance of this package's options.
var Config Options

// LoadDotEnv loads environment variables from the given files (".env" by
// default) without overriding variables that are already set. Missing files
// are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return err
	}
	glog.V(2).Infof("Loaded environment from %v", present)
	return nil
}

// GetEnv returns the value of key, or def if it is unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
