// cmd/harvest/main.go
//
// One-shot harvest tool: connects to a single QuickCheck device, pulls
// every measurement it reports and writes them to a CSV file. Useful
// without the full service and its database.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
	"quickcheck-service/internal/quickcheck"
)

func main() {
	var (
		host    = flag.String("host", "", "device host name or IP address")
		port    = flag.Int("port", 8123, "device UDP port")
		output  = flag.String("output", "measurements.csv", "CSV output path")
		timeout = flag.Duration("timeout", 3*time.Second, "per-exchange reply timeout")
	)
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "usage: harvest -host <device> [-port 8123] [-output measurements.csv]")
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*host, *port, *output, *timeout, logger); err != nil {
		logger.Fatal("Harvest failed", zap.Error(err))
	}
}

func run(host string, port int, output string, timeout time.Duration, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	session := protocol.NewUDPSession(&protocol.UDPConfig{
		Host:       host,
		Port:       port,
		Timeout:    timeout,
		BufferSize: 4096,
	}, logger)

	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	client := quickcheck.NewClient(session, quickcheck.DefaultRetryPolicy, logger)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("identify exchange failed: %w", err)
	}
	if !client.Connected() {
		return fmt.Errorf("device at %s:%d did not identify itself", host, port)
	}
	logger.Info("Device identified", zap.String("serial", strings.Join(client.Serial(), ";")))

	result, err := client.Harvest(ctx, func(p quickcheck.HarvestProgress) {
		logger.Info("Fetched measurement",
			zap.Int("index", p.Index),
			zap.Int("reported", p.Reported),
		)
	})
	if err != nil {
		return err
	}

	if err := writeCSV(output, result.Records); err != nil {
		return err
	}

	logger.Info("Harvest complete",
		zap.Int("reported", result.Reported),
		zap.Int("retrieved", len(result.Records)),
		zap.Int("skipped", len(result.Skipped)),
		zap.String("output", output),
	)
	return nil
}

func writeCSV(path string, records []*model.Measurement) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(model.FieldNames); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, m := range records {
		fields := m.Fields()
		row := make([]string, 0, len(model.FieldNames))
		for _, name := range model.FieldNames {
			row = append(row, fmt.Sprint(fields[name]))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
