/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"github.com/hypermodeinc/dggrs/dggrs/cmd"
	"github.com/hypermodeinc/dggrs/x"
)

func main() {
	x.Checkf(x.LoadDotEnv(), "while loading .env")
	cmd.Execute()
}
