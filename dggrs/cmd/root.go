/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package cmd

import (
	goflag "flag"
	"fmt"
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hypermodeinc/dggrs/dggrs/cmd/index"
	"github.com/hypermodeinc/dggrs/dggrs/cmd/version"
	"github.com/hypermodeinc/dggrs/dggrs/cmd/zone"
	"github.com/hypermodeinc/dggrs/x"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "dggrs",
	Short: "DGGRS: hexagonal discrete global grid and spatial index",
	Long: `
DGGRS partitions the sphere into a hierarchy of hexagonal zones, encodes
positions into zone identifiers and back, navigates the hierarchy, and finds
the zones covering a region. It also maintains persistent R*-tree indexes of
envelopes backed by files, badger, SQL databases or redis.
` + x.BuildDetails(),
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	goflag.Parse()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var (
	rootConf = viper.New()
	profiler x.Stopper
)

func init() {
	RootCmd.PersistentFlags().String("profile_mode", "",
		"Enable profiling mode, one of [cpu, mem, mutex, block]")
	RootCmd.PersistentFlags().Int("block_rate", 0,
		"Block profiling rate. Must be used along with block profile_mode")
	RootCmd.PersistentFlags().String("profile_dir", "",
		"Directory to write profiles to. Defaults to a temporary directory.")
	RootCmd.PersistentFlags().String("config", "",
		"Configuration file. Takes precedence over default values, but is "+
			"overridden to values set with environment variables and flags.")
	RootCmd.PersistentFlags().String("metrics_addr", "",
		"Serve prometheus metrics on this address while the command runs.")
	RootCmd.PersistentFlags().Bool("debugmode", false,
		"Check the tree invariants after every index mutation.")
	x.Check(rootConf.BindPFlags(RootCmd.PersistentFlags()))

	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	// Always set stderrthreshold=0. Don't let users set it themselves.
	x.Check(flag.Set("stderrthreshold", "0"))
	x.Check(flag.CommandLine.MarkDeprecated("stderrthreshold",
		"dggrs always sets this flag to 0. It can't be overwritten."))

	var subcommands = []*x.SubCommand{
		&zone.Zone, &index.Index, &version.Version,
	}
	for _, sc := range subcommands {
		RootCmd.AddCommand(sc.Cmd)
		sc.Conf = viper.New()
		x.Check(sc.Conf.BindPFlags(sc.Cmd.PersistentFlags()))
		x.Check(sc.Conf.BindPFlags(RootCmd.PersistentFlags()))
		sc.Conf.AutomaticEnv()
		sc.Conf.SetEnvPrefix(sc.EnvPrefix)
	}
	cobra.OnInitialize(func() {
		cfg := rootConf.GetString("config")
		if cfg == "" {
			return
		}
		for _, sc := range subcommands {
			sc.Conf.SetConfigFile(cfg)
			x.Checkf(sc.Conf.ReadInConfig(), "reading config")
		}
	})
}

func setup(cmd *cobra.Command, args []string) error {
	x.Config.DebugMode = rootConf.GetBool("debugmode")

	if addr := rootConf.GetString("metrics_addr"); addr != "" {
		h, err := x.MetricsHandler("dggrs")
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		go func() {
			glog.Infof("Serving metrics on %s/metrics", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				glog.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	var err error
	profiler, err = x.StartProfile(rootConf)
	return err
}

func teardown(cmd *cobra.Command, args []string) error {
	if profiler != nil {
		profiler.Stop()
	}
	glog.Flush()
	return nil
}
