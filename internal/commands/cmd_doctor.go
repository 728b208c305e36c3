package commands

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/commands/doctor"
	"github.com/hay-kot/parley/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Run health checks on the data directory",
		UsageText: "parley doctor [options]",
		Description: `Validates the configuration, checks that every message log is readable
and in order, and compares each log with its room summary.

A summary can fall behind its log when a send is interrupted after the
message was stored. Run with --fix to rebuild those summaries from the
newest message.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "repair stale room summaries",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	checks := []doctor.Check{
		doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath),
		doctor.NewLogCheck(cmd.flags.Messages),
		doctor.NewDriftCheck(cmd.flags.Messages, cmd.flags.Rooms, cmd.fix),
	}

	results := doctor.RunAll(ctx, checks)
	counts := doctor.Summarize(results)

	if cmd.format == "json" {
		return cmd.outputJSON(c, results, counts)
	}

	return cmd.outputText(ctx, results, counts)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result, counts doctor.Counts) error {
	out := struct {
		Healthy bool            `json:"healthy"`
		Summary doctor.Counts   `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: counts.Healthy(),
		Summary: counts,
		Checks:  results,
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (cmd *DoctorCmd) outputText(ctx context.Context, results []doctor.Result, counts doctor.Counts) error {
	p := printer.Ctx(ctx)

	for _, result := range results {
		p.Section(result.Name)

		for _, item := range result.Items {
			switch item.Status {
			case doctor.StatusPass:
				p.CheckItem(item.Label, item.Detail)
			case doctor.StatusWarn:
				p.WarnItem(item.Label, item.Detail)
			case doctor.StatusFail:
				p.FailItem(item.Label, item.Detail)
			}
		}

		p.Printf("")
	}

	p.Printf("Summary: %s", counts)
	if counts.Fixable > 0 {
		p.Infof("%d issue(s) can be repaired with 'parley doctor --fix'", counts.Fixable)
	}

	if !counts.Healthy() {
		return cli.Exit("", 1)
	}

	return nil
}
