package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) obligationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "obligations [bundles...]",
		Short: "Check that preconditions are satisfiable and imply the postconditions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, args, nil)
			if err != nil {
				return err
			}
			defer s.close()

			failed := false
			var errs []error
			for _, b := range s.bundles {
				for _, c := range b.Contracts {
					fmt.Fprintf(a.out, "Function: %s\n", c.Name)
					results, err := s.engine.CheckObligations(cmd.Context(), c)
					if err != nil {
						s.logger.Warn("obligation check failed", zap.String("function", c.Name), zap.Error(err))
						errs = append(errs, err)
					}
					for _, r := range results {
						status := statusStyle(r.Status).Sprint(strings.ToUpper(r.Status.String()))
						fmt.Fprintf(a.out, "  %-40s %s\n", r.Name, status)
						if !r.Verified {
							failed = true
						}
					}
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			if failed {
				return errUnverified
			}
			return nil
		},
	}
}
