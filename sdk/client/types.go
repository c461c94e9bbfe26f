package client

import (
	"encoding/json"
	"fmt"

	"tokenescrow/core/types"
)

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if kind := e.Kind(); kind != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, kind)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind returns the failure class reported by the node, such as
// "RecordNotFound", or "" when none was attached.
func (e *RPCError) Kind() string {
	if e == nil || len(e.Data) == 0 {
		return ""
	}
	var data struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}
	return data.Kind
}

type Receipt struct {
	Hash   string        `json:"hash"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Kind   string        `json:"kind,omitempty"`
	Events []types.Event `json:"events"`
}

type BatchEntry struct {
	Receipt *Receipt  `json:"receipt"`
	Error   *RPCError `json:"error,omitempty"`
}

type Account struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     []byte `json:"data"`
}

type TokenAccount struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

type Escrow struct {
	Address                        string `json:"address"`
	Initializer                    string `json:"initializer"`
	InitializerDepositTokenAccount string `json:"initializerDepositTokenAccount"`
	InitializerReceiveTokenAccount string `json:"initializerReceiveTokenAccount"`
	CustodyTokenAccount            string `json:"custodyTokenAccount"`
	DepositMint                    string `json:"depositMint,omitempty"`
	DepositAmount                  uint64 `json:"depositAmount"`
	TakerAmount                    uint64 `json:"takerAmount"`
	BumpSeed                       uint8  `json:"bumpSeed"`
	OpenedAt                       int64  `json:"openedAt,omitempty"`
}

type Custody struct {
	Record  string `json:"record"`
	Custody string `json:"custody"`
	Bump    uint8  `json:"bump"`
}

// ListFilter narrows ListOpen. Zero values match everything.
type ListFilter struct {
	Initializer string `json:"initializer,omitempty"`
	DepositMint string `json:"depositMint,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}
