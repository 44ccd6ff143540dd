// Package report renders solved runs for people and for monitoring.
//
// metrics.go turns an engine.Result into Prometheus metric families
// (client_model) and writes them in the text exposition format (expfmt), so
// the output can be dropped into a node_exporter textfile directory.
// ParseMetrics reads such a file back.
//
// summary.go writes a human summary as text, YAML or JSON.
//
// condition.go parses requirement expressions such as "availability >= 0.999"
// and checks them against a result; breaches wrap ErrRequirement.
package report
