package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mstaack/sw-usb-audio/internal/artifact"
	"github.com/mstaack/sw-usb-audio/internal/expect"
	"github.com/mstaack/sw-usb-audio/internal/models"
	"github.com/mstaack/sw-usb-audio/internal/verify"
)

// NewVerifyCommand creates the verify command
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <transcript>",
		Short: "Verify an analyzer transcript against an expectation set",
		Long: `Verify a signal-analyzer transcript against a set of per-channel
expectations.

The transcript is a plain text file of analyzer output lines, or a
zstd-compressed archive (.zst) as written by a run. The expectation set
names, per channel, the tone frequency the analyzer should report or a
volume-check declaration.

Verification reports every offending transcript line and every channel
whose report is missing or wrong. The command exits non-zero if any
failure is found, so it can gate CI jobs on archived transcripts.

Examples:
  # Verify a raw transcript
  soundcheck verify analyzer.log --expect stereo.json

  # Replay an archived run
  soundcheck verify ~/.soundcheck/artifacts/9f3c21aa.log.zst --expect stereo.json

  # Input-side capture
  soundcheck verify analyzer.log --expect stereo.json --direction input

  # A run that exercised the channel 1 volume control
  soundcheck verify analyzer.log --expect stereo.json --volcheck 1

  # A master-volume run (all channels ramp together)
  soundcheck verify analyzer.log --expect stereo.json --volcheck m`,
		Args: cobra.ExactArgs(1),
		RunE: verifyCommand,
	}

	cmd.Flags().StringP("expect", "e", "", "Expectation set file (JSON or YAML)")
	cmd.Flags().String("direction", "output", "Interface side the transcript captured (input or output)")
	cmd.Flags().String("volcheck", "", "Channels that ran a volume script (comma-separated indices, or m for master)")
	cmd.MarkFlagRequired("expect")

	return cmd
}

// verifyCommand implements the verify command logic
func verifyCommand(cmd *cobra.Command, args []string) error {
	expectPath, _ := cmd.Flags().GetString("expect")
	directionStr, _ := cmd.Flags().GetString("direction")
	volcheck, _ := cmd.Flags().GetString("volcheck")

	direction, err := models.ParseDirection(directionStr)
	if err != nil {
		return err
	}

	transcript, err := artifact.ReadTranscript(args[0])
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	set, err := expect.ParseFile(expectPath)
	if err != nil {
		return fmt.Errorf("failed to parse expectation file: %w", err)
	}

	if volcheck != "" {
		if err := markVolumeChecks(set, direction, volcheck); err != nil {
			return err
		}
	}

	exps := set.Side(direction)
	if len(exps) == 0 {
		return fmt.Errorf("expectation file %s declares no %s channels", expectPath, direction)
	}

	report, err := verify.Check(transcript, exps)
	if err != nil {
		return fmt.Errorf("verification error: %w", err)
	}

	out := cmd.OutOrStdout()
	if !report.Failed() {
		fmt.Fprintf(out, "✓ Transcript verified clean: %d line(s) against %d %s channel(s)\n",
			len(transcript), len(exps), direction)
		return nil
	}

	fmt.Fprintf(out, "✗ Verification failed\n")
	for _, failure := range report.Failures() {
		fmt.Fprintf(out, "  ✗ %s\n", failure)
	}
	fmt.Fprintf(out, "\nFound %d verification failure(s)!\n", report.Len())

	return fmt.Errorf("verification failed with %d failure(s)", report.Len())
}

// markVolumeChecks re-applies the volume-check overrides a run would have
// made, so archived transcripts of volume cases verify like the original run.
func markVolumeChecks(set *expect.Set, direction models.Direction, spec string) error {
	if spec == models.MasterChannel || spec == "all" {
		set.MarkAllVolumeCheck(direction)
		return nil
	}

	var channels []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		channel, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid volcheck channel %q: %w", part, err)
		}
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		return fmt.Errorf("volcheck flag %q names no channels", spec)
	}

	return set.MarkVolumeCheck(direction, channels...)
}
