package abiSource

import (
	"context"
	"encoding/json"
	"strings"
)

// AbiSource fetches the ABI json for a contract. Sources that have nothing for the
// address return an AbiNotFound FlowError.
type AbiSource interface {
	FetchAbi(ctx context.Context, address string, bytecode string) (string, error)
	Name() string
}

// Response is the shape of solc metadata published to IPFS.
type Response struct {
	Output struct {
		ABI json.RawMessage `json:"abi"`
	} `json:"output"`
}

// AbiString returns the ABI as a json document. Some publishers store it as a json
// encoded string instead of an array.
func (r *Response) AbiString() (string, error) {
	raw := strings.TrimSpace(string(r.Output.ABI))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(r.Output.ABI, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return raw, nil
}
