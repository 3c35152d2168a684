package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netq",
		Subsystem: "server",
		Name:      "active_clients",
		Help:      "Number of clients currently registered with this server.",
	})
	bytesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netq",
		Subsystem: "server",
		Name:      "bytes_uploaded_total",
		Help:      "Total bytes received from clients across all upload streams.",
	})
	bytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netq",
		Subsystem: "server",
		Name:      "bytes_downloaded_total",
		Help:      "Total bytes pushed to clients across all download streams.",
	})
)
