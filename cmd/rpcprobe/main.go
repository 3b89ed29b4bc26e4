// Package main probes a list of JSON-RPC endpoints and recommends the first
// one that answers within the deadline.
//
// Usage:
//
//	go run ./cmd/rpcprobe [-rpcs https://a,https://b] [-timeout 5s]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm/rpc"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/retry"
	"golang.org/x/sync/errgroup"
)

const defaultRPCs = "https://rpc.viction.xyz,https://rpc-viction.tomochain.com,https://viction.blockpi.network/v1/rpc/public"

type headReader interface {
	ChainID(ctx context.Context) (int64, error)
	GetBlockNumber(ctx context.Context) (int64, error)
}

type result struct {
	Endpoint string
	ChainID  int64
	Head     int64
	Latency  time.Duration
	Err      error
}

func (r result) healthy() bool { return r.Err == nil }

func main() {
	var (
		rpcsFlag    = flag.String("rpcs", defaultRPCs, "Comma-separated RPC endpoints, in order of preference")
		timeoutFlag = flag.Duration("timeout", 5*time.Second, "Per-endpoint deadline")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var endpoints []string
	for _, e := range strings.Split(*rpcsFlag, ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	if len(endpoints) == 0 {
		fmt.Fprintln(os.Stderr, "no endpoints to probe")
		os.Exit(2)
	}

	results := probeAll(context.Background(), endpoints, *timeoutFlag, func(endpoint string) headReader {
		return rpc.NewClient(endpoint, logger)
	})
	best, ok := report(os.Stdout, results)
	if !ok {
		os.Exit(1)
	}
	logger.Debug("recommended endpoint", "endpoint", best)
}

// probeAll probes every endpoint concurrently. Results keep the input order.
func probeAll(ctx context.Context, endpoints []string, timeout time.Duration, newClient func(string) headReader) []result {
	results := make([]result, len(endpoints))
	var g errgroup.Group
	for i, endpoint := range endpoints {
		g.Go(func() error {
			results[i] = probe(ctx, endpoint, newClient(endpoint), timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func probe(ctx context.Context, endpoint string, client headReader, timeout time.Duration) result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := result{Endpoint: endpoint}
	start := time.Now()
	head, err := client.GetBlockNumber(ctx)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("block number: %w", err)
		return res
	}
	res.Head = head

	chainID, err := client.ChainID(ctx)
	if err != nil {
		res.Err = fmt.Errorf("chain id: %w", err)
		return res
	}
	res.ChainID = chainID
	return res
}

// report prints one line per endpoint and returns the first healthy one.
func report(w io.Writer, results []result) (string, bool) {
	var b strings.Builder
	best := ""
	for _, r := range results {
		if r.healthy() {
			fmt.Fprintf(&b, "OK   %s  block=%d chain_id=%d latency=%dms\n", r.Endpoint, r.Head, r.ChainID, r.Latency.Milliseconds())
			if best == "" {
				best = r.Endpoint
			}
			continue
		}
		fmt.Fprintf(&b, "FAIL %s  %s error: %v\n", r.Endpoint, retry.Classify(r.Err).Class, r.Err)
	}
	if best != "" {
		fmt.Fprintf(&b, "\nrecommended RPC: %s\n", best)
	} else {
		b.WriteString("\nall RPCs failed\n")
	}
	_, _ = io.WriteString(w, b.String())
	return best, best != ""
}
