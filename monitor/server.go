// Copyright (C) 2015  Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package monitor provides an embedded HTTP server exposing pprof, expvar,
// dynamic log-level control, and a cuckoo hash table's Prometheus metrics
// for a running cuckoobench process.
package monitor

import (
	_ "expvar" // Go documentation recommended usage
	"fmt"
	"net/http"
	_ "net/http/pprof" // Go documentation recommended usage

	"github.com/aristanetworks/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristanetworks/cuckoohash/monitor/internal/loglevel"
)

// Server represents a monitoring server.
type Server interface {
	Run()
}

// server contains information for the monitoring server.
type server struct {
	// serverName is the listen address, e.g. host[:port].
	serverName string
}

// NewMonitorServer creates a new monitoring server listening on
// serverName. It always serves /debug (pprof and expvar links),
// /debug/loglevel (dynamic glog verbosity), and /metrics (Prometheus
// exposition format for any table created WithMetrics).
func NewMonitorServer(serverName string) Server {
	return &server{serverName: serverName}
}

func debugHandler(w http.ResponseWriter, r *http.Request) {
	indexTmpl := `<html>
	<head>
	<title>/debug</title>
	</head>
	<body>
	<p>/debug</p>
	<div><a href="/debug/vars">vars</a></div>
	<div><a href="/debug/pprof">pprof</a></div>
	<div><a href="/debug/loglevel">loglevel</a></div>
	<div><a href="/metrics">metrics</a></div>
	</body>
	</html>
	`
	fmt.Fprint(w, indexTmpl)
}

// Run sets up the HTTP server and every handler, blocking until it exits.
func (s *server) Run() {
	http.HandleFunc("/debug", debugHandler)
	http.Handle("/debug/loglevel", loglevel.Handler())
	http.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(s.serverName, nil); err != nil {
		glog.Errorf("monitor: could not start monitor server: %v", err)
	}
}
