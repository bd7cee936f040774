package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) smtCmd() *cobra.Command {
	var function string
	cmd := &cobra.Command{
		Use:   "smt [bundles...] --function name",
		Short: "Print the SMT-LIB 2 problems for one function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, args, nil)
			if err != nil {
				return err
			}
			defer s.close()

			fn, ok := s.function(function)
			if !ok {
				return fmt.Errorf("function %q not found", function)
			}
			scripts, err := s.engine.Scripts(fn, nil)
			if err != nil {
				return err
			}
			for i, sc := range scripts {
				if i > 0 {
					fmt.Fprintln(a.out)
				}
				fmt.Fprint(a.out, sc.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", "", "Function to print")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}
