// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentrun runs the agent orchestration HTTP server.
//
// Usage:
//
//	agentrun serve --config agentrun.yaml
//	agentrun validate --config agentrun.yaml
//	agentrun version
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/ravenforge/agentrun"
)

// CLI is the root kong command tree.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate a config file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	info := agentrun.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	fmt.Println(info.String())
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("agentrun"), kong.Description("Agent orchestration runtime."))
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "agentrun:", err)
		os.Exit(1)
	}
}
