// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// The cuckoobench command load-tests a chash.Table with a configurable
// number of concurrent caller goroutines, reporting throughput and miss
// rate, and optionally serving /metrics, pprof, and /debug/loglevel for the
// duration of the run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristanetworks/glog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/aristanetworks/cuckoohash/chash"
	"github.com/aristanetworks/cuckoohash/chash/qsbr"
	"github.com/aristanetworks/cuckoohash/monitor"
	"github.com/aristanetworks/cuckoohash/sync/semaphore"
)

func main() {
	entries := flag.Uint64("entries", 1<<20, "table capacity")
	keyLen := flag.Int("keylen", 8, "key length in bytes")
	callers := flag.Int("callers", 8, "number of concurrent caller goroutines")
	duration := flag.Duration("duration", 10*time.Second, "how long to run")
	mode := flag.String("mode", "rw-concurrent-lock-free",
		"concurrency mode: single-writer-single-reader, multi-writer, rw-concurrent, rw-concurrent-lock-free")
	extendable := flag.Bool("extendable-buckets", true, "enable the overflow chain fallback")
	localCache := flag.Bool("local-cache", true, "enable per-caller free-slot caching")
	metricsAddr := flag.String("metrics-addr", ":8080", "address to serve /metrics, pprof and /debug/loglevel on; empty disables it")
	maxConcurrentOps := flag.Int64("max-concurrent-ops", 1<<16, "upper bound on in-flight table operations at once")
	flag.Parse()

	m, err := parseMode(*mode)
	if err != nil {
		glog.Fatal(err)
	}

	if *metricsAddr != "" {
		go monitor.NewMonitorServer(*metricsAddr).Run()
	}

	opts := []chash.Option{
		chash.WithEntries(uint32(*entries)),
		chash.WithKeyLen(*keyLen),
		chash.WithMode(m),
		chash.WithMetrics("cuckoobench"),
	}
	if *extendable {
		opts = append(opts, chash.WithExtendableBuckets())
	}
	if *localCache {
		opts = append(opts, chash.WithLocalCache(*callers))
	}

	tbl, err := chash.Create(opts...)
	if err != nil {
		glog.Fatalf("cuckoobench: creating table: %v", err)
	}
	defer tbl.Close()

	var svc *qsbr.Service
	if m == chash.RWConcurrentLockFree {
		svc = qsbr.New(func(e qsbr.Entry) error { return nil })
		if err := tbl.RCUQSBRAdd(chash.RCUConfig{Service: svc}); err != nil {
			glog.Fatalf("cuckoobench: RCUQSBRAdd: %v", err)
		}
	}

	sem := semaphore.NewWeighted(*maxConcurrentOps)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var adds, lookups, hits, misses, noSpace atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < *callers; c++ {
		caller := c
		g.Go(func() error {
			var reader *qsbr.Reader
			if svc != nil {
				reader = svc.RegisterReader()
				defer svc.Unregister(reader)
			}
			rnd := rand.New(rand.NewSource(uint64(caller) + 1))
			key := make([]byte, *keyLen)
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				rnd.Read(key)
				switch rnd.Intn(4) {
				case 0:
					if _, err := tbl.AddFrom(caller, key, nil); err != nil {
						if errors.Is(err, chash.ErrNoSpace) {
							noSpace.Add(1)
						}
					} else {
						adds.Add(1)
					}
				default:
					if _, _, err := tbl.Lookup(key); err == nil {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
					lookups.Add(1)
				}
				sem.Release(1)
				if reader != nil {
					reader.Quiescent()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		glog.Errorf("cuckoobench: run ended with error: %v", err)
	}

	elapsed := *duration
	fmt.Printf("entries=%d keylen=%d callers=%d mode=%s\n", *entries, *keyLen, *callers, m)
	fmt.Printf("adds=%d no_space=%d lookups=%d hits=%d misses=%d\n",
		adds.Load(), noSpace.Load(), lookups.Load(), hits.Load(), misses.Load())
	fmt.Printf("table count=%d\n", tbl.Count())
	fmt.Printf("ops/sec=%.0f\n", float64(adds.Load()+lookups.Load())/elapsed.Seconds())
}

func parseMode(s string) (chash.Mode, error) {
	switch s {
	case "single-writer-single-reader":
		return chash.SingleWriterSingleReader, nil
	case "multi-writer":
		return chash.MultiWriter, nil
	case "rw-concurrent":
		return chash.RWConcurrent, nil
	case "rw-concurrent-lock-free":
		return chash.RWConcurrentLockFree, nil
	default:
		return 0, fmt.Errorf("cuckoobench: unknown mode %q", s)
	}
}
