/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"fmt"
)

var (
	// These variables are set using -ldflags
	dggrsVersion   string
	gitBranch      string
	lastCommitSHA  string
	lastCommitTime string
)

// NonRootTemplate is the help template used by every subcommand.
const NonRootTemplate = `{{if .HasAvailableSubCommands}}Usage:{{range .Commands}}{{if .IsAvailableCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{else}}Usage:
  {{.UseLine}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}
`

func BuildDetails() string {
	return fmt.Sprintf(`
DGGRS version    : %v
Commit SHA-1     : %v
Commit timestamp : %v
Branch           : %v

Licensed under the Apache Public License 2.0.
© Hypermode Inc.

`,
		Version(), lastCommitSHA, lastCommitTime, gitBranch)
}

func Version() string {
	if dggrsVersion == "" {
		return "dev"
	}
	return dggrsVersion
}
