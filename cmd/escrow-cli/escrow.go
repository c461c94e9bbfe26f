package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"tokenescrow/crypto"
	"tokenescrow/sdk/client"
)

type addressFlags map[string]*string

// resolve decodes every named flag value into a public key.
func (f addressFlags) resolve() (map[string]solana.PublicKey, error) {
	out := make(map[string]solana.PublicKey, len(f))
	for name, raw := range f {
		pk, err := crypto.DecodeAddress(*raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		out[name] = pk
	}
	return out, nil
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}

func newInitCmd(opts *globalOptions) *cobra.Command {
	var keyPath, record string
	var amount, takerAmount uint64
	addrs := addressFlags{"deposit-account": new(string), "deposit-mint": new(string), "receive-account": new(string)}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Open an escrow offering --amount of the deposit mint for --taker-amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.LoadFromKeystore(keyPath)
			if err != nil {
				return err
			}
			programID, err := opts.program()
			if err != nil {
				return err
			}
			resolved, err := addrs.resolve()
			if err != nil {
				return err
			}
			recordAddr := solana.NewWallet().PublicKey()
			if record != "" {
				if recordAddr, err = crypto.DecodeAddress(record); err != nil {
					return fmt.Errorf("--record: %w", err)
				}
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			receipt, err := c.Initialize(cmd.Context(), key, client.InitializeParams{
				ProgramID:           programID,
				Record:              recordAddr,
				DepositTokenAccount: resolved["deposit-account"],
				DepositMint:         resolved["deposit-mint"],
				ReceiveTokenAccount: resolved["receive-account"],
				DepositAmount:       amount,
				TakerAmount:         takerAmount,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"record": recordAddr.String(), "receipt": receipt})
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "wallet.json", "Initializer keypair file")
	cmd.Flags().StringVar(&record, "record", "", "Escrow record address (random when omitted)")
	cmd.Flags().StringVar(addrs["deposit-account"], "deposit-account", "", "Token account funding the deposit")
	cmd.Flags().StringVar(addrs["deposit-mint"], "deposit-mint", "", "Mint of the deposit")
	cmd.Flags().StringVar(addrs["receive-account"], "receive-account", "", "Token account receiving the taker's payment")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "Deposit amount")
	cmd.Flags().Uint64Var(&takerAmount, "taker-amount", 0, "Amount the taker must pay")
	requireFlags(cmd, "deposit-account", "deposit-mint", "receive-account", "amount", "taker-amount")
	return cmd
}

func newExchangeCmd(opts *globalOptions) *cobra.Command {
	var keyPath string
	addrs := addressFlags{"record": new(string), "deposit-account": new(string), "receive-account": new(string)}
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Take an open escrow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.LoadFromKeystore(keyPath)
			if err != nil {
				return err
			}
			programID, err := opts.program()
			if err != nil {
				return err
			}
			resolved, err := addrs.resolve()
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			receipt, err := c.Exchange(cmd.Context(), key, client.ExchangeParams{
				ProgramID:           programID,
				Record:              resolved["record"],
				DepositTokenAccount: resolved["deposit-account"],
				ReceiveTokenAccount: resolved["receive-account"],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "wallet.json", "Taker keypair file")
	cmd.Flags().StringVar(addrs["record"], "record", "", "Escrow record address")
	cmd.Flags().StringVar(addrs["deposit-account"], "deposit-account", "", "Token account paying the initializer")
	cmd.Flags().StringVar(addrs["receive-account"], "receive-account", "", "Token account receiving the deposit")
	requireFlags(cmd, "record", "deposit-account", "receive-account")
	return cmd
}

func newCancelCmd(opts *globalOptions) *cobra.Command {
	var keyPath, record string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an open escrow and reclaim the deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.LoadFromKeystore(keyPath)
			if err != nil {
				return err
			}
			programID, err := opts.program()
			if err != nil {
				return err
			}
			recordAddr, err := crypto.DecodeAddress(record)
			if err != nil {
				return fmt.Errorf("--record: %w", err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			receipt, err := c.Cancel(cmd.Context(), key, programID, recordAddr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "wallet.json", "Initializer keypair file")
	cmd.Flags().StringVar(&record, "record", "", "Escrow record address")
	requireFlags(cmd, "record")
	return cmd
}
