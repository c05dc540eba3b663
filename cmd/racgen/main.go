// Copyright 2019 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// The racgen command generates runtime assertion checks from the rac:
// directives attached to Go declarations.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/frontend"
	"github.com/cockroachdb/racgen/pkg/gen"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	exec, err := os.Executable()
	if err == nil {
		exec = filepath.Base(exec)
	} else {
		exec = "racgen"
	}

	if err := newCommand(exec).Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func newCommand(exec string) *cobra.Command {
	g := &gen.Gen{}
	var configFile, mode string
	var setExitStatus, verbose bool

	root := &cobra.Command{
		Use:           exec + " [packages]",
		Short:         "Generate runtime assertion checks for contracted Go declarations",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sig := make(chan os.Signal, 1)
			defer close(sig)

			signal.Notify(sig, syscall.SIGINT)
			defer signal.Stop(sig)

			go func() {
				if _, open := <-sig; open {
					cmd.Println("Interrupted")
					cancel()
				}
			}()

			path, explicit := configPath(g.Dir, configFile)
			cfg, err := loadConfig(path, explicit)
			if err != nil {
				return err
			}
			g.Mode = contract.ParseMode(mode)
			g.Packages = args
			cfg.apply(cmd, g, &setExitStatus, &verbose)
			if len(g.Packages) == 0 {
				g.Packages = []string{"."}
			}
			if verbose {
				g.Logger = log.New(cmd.OutOrStdout(), "" /* prefix */, 0 /* flags */)
			}

			results, err := g.Execute(ctx)
			if err != nil {
				return err
			}
			report(cmd, g.Dir, results)
			if len(results) > 0 && setExitStatus {
				return errors.Errorf("%d declarations could not be checked", len(results))
			}
			return nil
		},
	}
	root.Flags().BoolVar(&g.AssertedInterfaces, "asserted_only",
		false, "only consider explicit type assertions when inheriting interface contracts")
	root.Flags().StringSliceVar(&g.BuildFlags, "build_flags",
		nil, "additional build flags to pass to the loader")
	root.Flags().StringVarP(&configFile, "config", "c",
		"", "read settings from this file (defaults to "+ConfigFile+" in --dir)")
	root.Flags().StringVarP(&g.Dir, "dir", "d",
		".", "override the current working directory")
	root.Flags().StringVarP(&mode, "mode", "m",
		contract.ModeDirect.String(), "instrumentation mode: direct, callSite or clientAwareChecking")
	root.Flags().StringVarP(&g.Outfile, "out", "o",
		"", "override the output filename (defaults to <package>_rac.go)")
	root.Flags().BoolVar(&setExitStatus, "set_exit_status",
		false, "return a non-zero exit code if declarations could not be checked")
	root.Flags().BoolVarP(&g.Tests, "tests", "t",
		false, "include test sources")
	root.Flags().BoolVarP(&verbose, "verbose", "v",
		false, "enable additional diagnostic messages")

	root.AddCommand(&cobra.Command{
		Use:   "directives",
		Short: "Lists the supported directives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := make([]string, 0, len(frontend.Directives))
			for name := range frontend.Directives {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				cmd.Printf("//rac:%s\n\t%s\n", name, frontend.Directives[name])
			}
			return nil
		},
	})
	return root
}

// report prints the declarations which could not be checked. The
// top-level and second-level results are sorted to create more stable
// output.
func report(cmd *cobra.Command, dir string, results frontend.Results) {
	warn := color.New(color.FgYellow)
	sort.Sort(results)
	for _, result := range results {
		sort.Sort(result.Children)
		warn.Fprint(cmd.OutOrStdout(), "warning: ")
		cmd.Printf("%s\n\n", result.StringRelative(dir))
	}
}
