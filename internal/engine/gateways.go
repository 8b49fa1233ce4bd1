package engine

import (
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/gateway"
	"solana-sniper/internal/observability"
	solrpc "solana-sniper/internal/solana"
)

// GatewayFactory builds the chain gateway for an endpoint.
type GatewayFactory func(endpoint string) (gateway.Gateway, error)

// FactoryOptions configures the stock factories.
type FactoryOptions struct {
	CallTimeout   time.Duration
	SkipPreflight bool
	Builder       gateway.PurchaseBuilder
	FillDelay     time.Duration // paper only
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

func (o FactoryOptions) rpcClient(endpoint string) *solrpc.HTTPClient {
	return solrpc.NewHTTPClient(endpoint,
		solrpc.WithObserver(o.Metrics.ObserveRPC),
	)
}

// RPCGateways submits real transactions to the endpoint.
func RPCGateways(o FactoryOptions) GatewayFactory {
	return func(endpoint string) (gateway.Gateway, error) {
		return gateway.NewRPCGateway(gateway.RPCGatewayOptions{
			Client:        o.rpcClient(endpoint),
			Builder:       o.Builder,
			CallTimeout:   o.CallTimeout,
			SkipPreflight: o.SkipPreflight,
			Logger:        o.Logger,
		}), nil
	}
}

// PaperGateways reads balances from the endpoint and simulates fills.
func PaperGateways(o FactoryOptions) GatewayFactory {
	return func(endpoint string) (gateway.Gateway, error) {
		balances := gateway.NewRPCGateway(gateway.RPCGatewayOptions{
			Client:      o.rpcClient(endpoint),
			CallTimeout: o.CallTimeout,
			Logger:      o.Logger,
		})
		return gateway.NewPaperGateway(gateway.PaperGatewayOptions{
			Balances:  balances,
			FillDelay: o.FillDelay,
			Logger:    o.Logger,
		}), nil
	}
}
