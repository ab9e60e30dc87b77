/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/viper"
)

// Stopper ends a profiling session.
type Stopper interface {
	Stop()
}

// StartProfile starts the profile selected by the profile_mode key of conf.
// An empty mode profiles nothing.
func StartProfile(conf *viper.Viper) (Stopper, error) {
	opts := []func(*profile.Profile){profile.Quiet}
	if dir := conf.GetString("profile_dir"); dir != "" {
		opts = append(opts, profile.ProfilePath(dir))
	}
	switch mode := conf.GetString("profile_mode"); mode {
	case "cpu":
		return profile.Start(append(opts, profile.CPUProfile)...), nil
	case "mem":
		return profile.Start(append(opts, profile.MemProfile)...), nil
	case "mutex":
		return profile.Start(append(opts, profile.MutexProfile)...), nil
	case "block":
		runtime.SetBlockProfileRate(conf.GetInt("block_rate"))
		return profile.Start(append(opts, profile.BlockProfile)...), nil
	case "":
		return noOpStopper{}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "profile mode %q", mode)
	}
}

type noOpStopper struct{}

func (noOpStopper) Stop() {}
