package main

import (
	"encoding/json"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lhaig/contractcheck/internal/verify"
)

func (a *app) verifyCmd() *cobra.Command {
	var (
		jsonOutput bool
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "verify [bundles...]",
		Short: "Verify every function in the given bundles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bar *progressbar.ProgressBar
			progress := func(r *verify.VerificationResult) {
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			s, err := a.open(cmd, args, progress)
			if err != nil {
				return err
			}
			defer s.close()

			prog := s.program()
			if !jsonOutput && !noProgress {
				bar = progressbar.NewOptions(len(prog.Functions),
					progressbar.OptionSetWriter(a.errOut),
					progressbar.OptionSetDescription("verifying"),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}))
			}

			results := s.engine.VerifyProgram(cmd.Context(), prog)
			if bar != nil {
				_ = bar.Finish()
			}

			if jsonOutput {
				d, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(d))
			} else {
				printResults(a, results)
			}

			if !verify.AllVerified(results) {
				return errUnverified
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
	return cmd
}

func printResults(a *app, results []*verify.VerificationResult) {
	fmt.Fprint(a.out, verify.FormatReport(results))

	d := verify.Diagnostics(results)
	if d.Count() > 0 {
		d.Sort()
		fmt.Fprintln(a.errOut, d.Format(""))
		fmt.Fprintln(a.errOut, d.Summary())
	}

	verified := 0
	for _, r := range results {
		if r.Verified {
			verified++
		}
	}
	style := statusStyle(verify.Worst(results))
	fmt.Fprintln(a.out, style.Sprintf("%d of %d functions verified", verified, len(results)))
}
