package main

import (
	"github.com/spf13/cobra"

	"tokenescrow/sdk/client"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record>",
		Short: "Show an open escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			view, err := c.Escrow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var filter client.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open escrows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			open, err := c.ListOpen(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), open)
		},
	}
	cmd.Flags().StringVar(&filter.Initializer, "initializer", "", "Only escrows opened by this wallet")
	cmd.Flags().StringVar(&filter.DepositMint, "mint", "", "Only escrows depositing this mint")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of results")
	return cmd
}

func newAccountCmd(opts *globalOptions) *cobra.Command {
	var asToken bool
	cmd := &cobra.Command{
		Use:   "account <address>",
		Short: "Show a ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if asToken {
				acc, err := c.TokenAccount(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acc)
			}
			acc, err := c.Account(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acc)
		},
	}
	cmd.Flags().BoolVar(&asToken, "as-token", false, "Decode the account as a token account")
	return cmd
}
