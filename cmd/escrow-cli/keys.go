package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenescrow/crypto"
	"tokenescrow/native/escrow"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(out, key); err != nil {
				return fmt.Errorf("save key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "wallet.json", "Path of the keypair file to write")
	return cmd
}

func newDeriveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <record>",
		Short: "Derive the custody account of an escrow record locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := opts.program()
			if err != nil {
				return err
			}
			record, err := crypto.DecodeAddress(args[0])
			if err != nil {
				return err
			}
			custody, bump, err := escrow.DeriveCustody(programID, record)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"record":  record.String(),
				"custody": custody.String(),
				"bump":    bump,
			})
		},
	}
}
