package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/crossbuild/cmd/crossbuild/commands"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/version"
)

func main() {
	var cli commands.CLI
	parser := kong.Parse(&cli,
		kong.Name("crossbuild"),
		kong.Description("Cross-compile ungoogled-chromium for Windows on a Linux host."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(&commands.Global{Out: os.Stdout}),
	)
	err := parser.Run(&cli)
	ferrors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err)
}
