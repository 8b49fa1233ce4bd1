package engine

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnknownNetwork is returned for a name that is neither a known network
// nor an http(s) URL.
var ErrUnknownNetwork = errors.New("unknown network")

// Network is a named RPC endpoint offered to the operator.
type Network struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Endpoint string `json:"endpoint"`
}

// Networks are the selectable clusters, in display order.
var Networks = []Network{
	{Name: "mainnet", Label: "Mainnet", Endpoint: "https://api.mainnet-beta.solana.com"},
	{Name: "devnet", Label: "Devnet", Endpoint: "https://api.devnet.solana.com"},
	{Name: "testnet", Label: "Testnet", Endpoint: "https://api.testnet.solana.com"},
	{Name: "localnet", Label: "Localnet", Endpoint: "http://localhost:8899"},
}

// ResolveEndpoint maps a network name to its endpoint. An http(s) URL is
// returned unchanged.
func ResolveEndpoint(nameOrURL string) (string, error) {
	v := strings.TrimSpace(nameOrURL)
	for _, n := range Networks {
		if strings.EqualFold(v, n.Name) || strings.EqualFold(v, n.Label) {
			return n.Endpoint, nil
		}
	}

	u, err := url.Parse(v)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, nameOrURL)
}

// WSEndpoint derives the PubSub endpoint from an RPC endpoint:
// http becomes ws, https becomes wss, and port 8899 becomes 8900.
func WSEndpoint(rpcEndpoint string) (string, error) {
	u, err := url.Parse(rpcEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse rpc endpoint: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrUnknownNetwork, u.Scheme)
	}

	if u.Port() == "8899" {
		u.Host = net.JoinHostPort(u.Hostname(), "8900")
	}
	return u.String(), nil
}
