package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/traceid"
	"github.com/go-chi/transport"

	walletgate "github.com/halyardhq/walletgate"
	"github.com/halyardhq/walletgate/config"
	"github.com/halyardhq/walletgate/rpc"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	// HTTP transport chain for all outgoing connections
	transportChain := transport.Chain(
		http.DefaultTransport,
		transport.SetHeader("User-Agent", "walletgate/"+walletgate.VERSION),
		traceid.Transport,
	)

	s, err := rpc.New(cfg, transportChain)
	if err != nil {
		panic(err)
	}
	defer s.Stop(context.Background())

	l, err := net.Listen("tcp", cfg.Service.ListenAddr)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx, l); err != nil {
		panic(err)
	}
}
