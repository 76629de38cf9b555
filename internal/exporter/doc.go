// Package exporter publishes gateway readings as Prometheus metrics.
//
// A Collector reads one gateway on every scrape: charge, backup reserve,
// per meter power and energy, grid status, site controller state and an info
// series carrying the firmware version and device type. A failed scrape
// reports powerwall_scrape_success 0 and no other gateway series. When the
// gateway rejects the session the collector logs in again once per scrape.
//
// Server wires collectors into a promhttp handler.
package exporter
