// Package exporter writes finished panels and their diagnostics to disk.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// Panel export: WritePanel streams a panel row by row; continuous columns
// carry a ":num" header suffix so a re-imported panel keeps its proration
// semantics.
//
// Diagnostics export: WriteDiagnostics splits a report into counts,
// warnings and coverage CSV files; WriteWorkbook bundles the panel and
// report into one Excel workbook.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(cfg.Paths)
//	err := w.WritePanel("panel.csv", panel, exporter.PanelOptions{
//		NumericColumns: []string{"elapsed"},
//	})
//	err = w.WriteDiagnostics("run", report)
package exporter
