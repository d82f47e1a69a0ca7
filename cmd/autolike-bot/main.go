package main

import (
	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the command line: global flags plus one subcommand.
type CLI struct {
	EnvFile string           `name:"env-file" help:"Optional .env file, values already in the environment win" default:".env"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run          RunCmd          `cmd:"" default:"1" help:"Listen for gestures and run the proactive-like job (default)"`
	LikeNow      LikeNowCmd      `cmd:"" name:"like-now" help:"Run one proactive-like pass and exit"`
	History      HistoryCmd      `cmd:"" help:"Print the most recent pokes and likes from the journal"`
	Status       StatusCmd       `cmd:"" help:"Print the plugin configuration, counters and the last run"`
	ImportConfig ImportConfigCmd `cmd:"" name:"import-config" help:"Replace the plugin configuration with a JSON file"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("autolike-bot"),
		kong.Description("Pokes back at thumb-ups and pokes, and sends scheduled profile likes."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&globals{envFile: cli.EnvFile}))
}
