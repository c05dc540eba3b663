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

package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/gen"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ConfigFile is read from the working directory if --config is not set.
const ConfigFile = "racgen.toml"

// config mirrors the command-line flags. Flags which are set
// explicitly take precedence over the file.
type config struct {
	AssertedOnly  bool     `toml:"asserted_only"`
	BuildFlags    []string `toml:"build_flags"`
	Mode          string   `toml:"mode"`
	Out           string   `toml:"out"`
	Packages      []string `toml:"packages"`
	SetExitStatus bool     `toml:"set_exit_status"`
	Tests         bool     `toml:"tests"`
	Verbose       bool     `toml:"verbose"`
}

// loadConfig decodes the file at path. A missing default file is not
// an error.
func loadConfig(path string, explicit bool) (*config, error) {
	ret := &config{}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return ret, nil
		}
		return nil, errors.Wrap(err, path)
	}
	md, err := toml.DecodeFile(path, ret)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return ret, nil
}

// apply copies the values of the file into g, unless the matching
// flag was set on the command line.
func (c *config) apply(cmd *cobra.Command, g *gen.Gen, setExitStatus, verbose *bool) {
	flags := cmd.Flags()
	if !flags.Changed("asserted_only") {
		g.AssertedInterfaces = c.AssertedOnly
	}
	if !flags.Changed("build_flags") && len(c.BuildFlags) > 0 {
		g.BuildFlags = c.BuildFlags
	}
	if !flags.Changed("mode") && c.Mode != "" {
		g.Mode = contract.ParseMode(c.Mode)
	}
	if !flags.Changed("out") && c.Out != "" {
		g.Outfile = c.Out
	}
	if len(g.Packages) == 0 {
		g.Packages = c.Packages
	}
	if !flags.Changed("set_exit_status") {
		*setExitStatus = c.SetExitStatus
	}
	if !flags.Changed("tests") {
		g.Tests = c.Tests
	}
	if !flags.Changed("verbose") {
		*verbose = c.Verbose
	}
}

func configPath(dir, flag string) (string, bool) {
	if flag != "" {
		return flag, true
	}
	return filepath.Join(dir, ConfigFile), false
}
