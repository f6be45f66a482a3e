package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mstaack/sw-usb-audio/internal/config"
	"github.com/mstaack/sw-usb-audio/internal/expect"
	"github.com/mstaack/sw-usb-audio/internal/models"
	"github.com/mstaack/sw-usb-audio/internal/testplan"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-or-expectation-file>...",
		Short: "Validate plan files and expectation sets",
		Long: `Parse and validate plan files and expectation sets, checking for:
  - Case validation (numbers, devices, sample rates, channels)
  - Devices present in the configured device table
  - Volume channels within the device's channel count
  - Referenced analyzer config files exist and parse
  - Duplicate case numbers across plan files

Plan files are Markdown or YAML; expectation sets are JSON or YAML.
YAML files are tried as plans first and fall back to expectation sets.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFilesWithOutput(args, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

type fileKind int

const (
	filePlan fileKind = iota
	fileExpectation
	fileUnknown
)

// classifyFile decides how to validate a path from its extension
func classifyFile(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return fileExpectation
	case ".md", ".markdown", ".yaml", ".yml":
		return filePlan
	default:
		return fileUnknown
	}
}

// validateFilesWithOutput validates plan and expectation files with a custom
// output writer (for testing)
func validateFilesWithOutput(paths []string, output io.Writer) error {
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var errors []string
	var plans []*testplan.Plan

	for _, path := range paths {
		switch classifyFile(path) {
		case fileExpectation:
			errors = append(errors, validateExpectationFile(path, output)...)
		case filePlan:
			plan, errs := validatePlanFile(path, cfg, output)
			errors = append(errors, errs...)
			if plan != nil {
				plans = append(plans, plan)
			}
		case fileUnknown:
			errMsg := fmt.Sprintf("%s: unsupported file type (want .md, .yaml or .json)", path)
			errors = append(errors, errMsg)
			fmt.Fprintf(output, "✗ %s\n", errMsg)
		}
	}

	// Case numbers must stay unique when the plan files run together
	if len(plans) > 1 {
		if _, err := testplan.MergePlans(plans...); err != nil {
			errors = append(errors, err.Error())
			fmt.Fprintf(output, "✗ %v\n", err)
		} else {
			fmt.Fprintf(output, "✓ No duplicate case numbers across plan files\n")
		}
	}

	if len(errors) == 0 {
		fmt.Fprintf(output, "\n✓ All files valid!\n")
		return nil
	}

	// Report all validation errors
	fmt.Fprintf(output, "\n✗ Validation failed\n")
	for _, errMsg := range errors {
		fmt.Fprintf(output, "  ✗ %s\n", errMsg)
	}
	fmt.Fprintf(output, "\nFound %d validation error(s)!\n", len(errors))

	return fmt.Errorf("validation failed with %d error(s)", len(errors))
}

// validatePlanFile parses one plan file and checks its cases against the
// device table. YAML files that parse to zero cases are retried as
// expectation sets, since both formats share the extension.
func validatePlanFile(path string, cfg *config.Config, output io.Writer) (*testplan.Plan, []string) {
	plan, err := testplan.ParseFile(path)
	if err != nil {
		errMsg := fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)
		fmt.Fprintf(output, "✗ %s\n", errMsg)
		return nil, []string{errMsg}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if len(plan.Cases) == 0 && (ext == ".yaml" || ext == ".yml") {
		set, setErr := expect.ParseFile(path)
		if setErr == nil && len(set.In)+len(set.Out) > 0 {
			return nil, validateSet(path, set, output)
		}
	}

	fmt.Fprintf(output, "✓ %s: parsed %d case(s)\n", filepath.Base(path), len(plan.Cases))

	var errors []string
	for _, c := range plan.Cases {
		if err := c.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("Case %s: %v", c.Number, err))
			continue
		}

		dev, ok := cfg.Device(c.Device)
		if !ok {
			errors = append(errors, fmt.Sprintf("Case %s: device %q not in device table", c.Number, c.Device))
			continue
		}

		if c.HasVolumeControl() && !c.IsMaster() {
			idx, err := c.ChannelIndex()
			if err != nil {
				errors = append(errors, fmt.Sprintf("Case %s: %v", c.Number, err))
			} else if idx >= dev.Channels {
				errors = append(errors, fmt.Sprintf("Case %s: channel %d out of range for %s (%d channels)",
					c.Number, idx, c.Device, dev.Channels))
			}
		}

		set, err := expect.ParseFile(resolvePlanConfig(c))
		if err != nil {
			errors = append(errors, fmt.Sprintf("Case %s: config %s: %v", c.Number, c.Config, err))
			continue
		}
		if err := set.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("Case %s: config %s: %v", c.Number, c.Config, err))
		}
	}

	return plan, errors
}

// resolvePlanConfig mirrors the resolution a run applies: relative config
// paths resolve against the plan file's directory.
func resolvePlanConfig(c models.Case) string {
	if filepath.IsAbs(c.Config) || c.SourceFile == "" {
		return c.Config
	}
	return filepath.Join(filepath.Dir(c.SourceFile), c.Config)
}

// validateExpectationFile parses and validates one expectation set file
func validateExpectationFile(path string, output io.Writer) []string {
	set, err := expect.ParseFile(path)
	if err != nil {
		errMsg := fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)
		fmt.Fprintf(output, "✗ %s\n", errMsg)
		return []string{errMsg}
	}
	return validateSet(path, set, output)
}

// validateSet checks a parsed expectation set and prints its channel counts
func validateSet(path string, set *expect.Set, output io.Writer) []string {
	if err := set.Validate(); err != nil {
		errMsg := fmt.Sprintf("%s: %v", filepath.Base(path), err)
		fmt.Fprintf(output, "✗ %s\n", errMsg)
		return []string{errMsg}
	}
	fmt.Fprintf(output, "✓ %s: %d in / %d out channel(s)\n", filepath.Base(path), len(set.In), len(set.Out))
	return nil
}
