package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"tokenescrow/crypto"
	"tokenescrow/native/escrow"
	"tokenescrow/sdk/client"
)

const (
	rpcURLEnv   = "ESCROW_RPC_URL"
	rpcTokenEnv = "ESCROW_RPC_TOKEN"
	defaultRPC  = "http://127.0.0.1:8899/rpc"
)

type globalOptions struct {
	rpcURL    string
	rpcToken  string
	programID string
}

func (g *globalOptions) client() (*client.Client, error) {
	return client.New(g.rpcURL, client.WithAuthToken(g.rpcToken))
}

func (g *globalOptions) program() (solana.PublicKey, error) {
	return crypto.DecodeAddress(g.programID)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "escrow-cli",
		Short:         "Create, take and cancel token escrows",
		Long:          `escrow-cli signs escrow instructions with local key files and submits them to an escrowd node.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc", envOr(rpcURLEnv, defaultRPC), "JSON-RPC endpoint of the node")
	root.PersistentFlags().StringVar(&opts.rpcToken, "token", os.Getenv(rpcTokenEnv), "Bearer token for transaction submission")
	root.PersistentFlags().StringVar(&opts.programID, "program", escrow.DefaultProgramID.String(), "Escrow program address")

	root.AddCommand(
		newKeygenCmd(),
		newDeriveCmd(opts),
		newInitCmd(opts),
		newExchangeCmd(opts),
		newCancelCmd(opts),
		newShowCmd(opts),
		newListCmd(opts),
		newAccountCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
