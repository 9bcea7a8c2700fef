package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/admission-router/internal/metrics"
)

func setupRouter(collector *metrics.Collector, strategy string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", collector.Handler(strategy))
	mux.Handle("/metrics/prometheus", promhttp.Handler())

	return mux
}
