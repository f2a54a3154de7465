// Command pose-pcap replays a packet capture of the tracker's UDP stream and
// prints the decoded detection records as CSV. With -png it also renders the
// translation trajectory of the successful records.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/banshee-data/marker.tracker/internal/monitor"
	"github.com/banshee-data/marker.tracker/internal/replay"
	"github.com/banshee-data/marker.tracker/internal/security"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

// Config holds the command-line options.
type Config struct {
	PCAPFile string
	Port     int
	PNGFile  string
	Quiet    bool
}

var csvHeader = []string{
	"captured_at", "timestamp", "success",
	"x", "y", "z",
	"right_x", "right_y", "right_z",
	"up_x", "up_y", "up_z",
	"forward_x", "forward_y", "forward_z",
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func csvRow(d replay.Datagram) []string {
	rec := d.Record
	row := []string{
		d.CapturedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		formatFloat(rec.Timestamp),
		strconv.FormatBool(rec.Success),
	}
	if !rec.Success {
		for len(row) < len(csvHeader) {
			row = append(row, "")
		}
		return row
	}
	row = append(row, formatFloat(rec.Translation[0]), formatFloat(rec.Translation[1]), formatFloat(rec.Translation[2]))
	for _, v := range rec.Orientation.Components() {
		row = append(row, formatFloat(v))
	}
	return row
}

func run(ctx context.Context, cfg Config, out io.Writer) (replay.Stats, error) {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return replay.Stats{}, err
	}

	var records []tracking.DetectionRecord
	stats, err := replay.ReadFile(ctx, cfg.PCAPFile, replay.Options{Port: cfg.Port}, func(d replay.Datagram) error {
		if d.Record.Success {
			records = append(records, d.Record)
		}
		return w.Write(csvRow(d))
	})
	w.Flush()
	if err != nil {
		return stats, err
	}
	if err := w.Error(); err != nil {
		return stats, err
	}

	if cfg.PNGFile != "" {
		if err := security.ValidateOutputPath(cfg.PNGFile); err != nil {
			return stats, err
		}
		f, err := os.Create(cfg.PNGFile)
		if err != nil {
			return stats, fmt.Errorf("create %s: %w", cfg.PNGFile, err)
		}
		if err := monitor.WriteTrajectoryPNG(f, records); err != nil {
			f.Close()
			return stats, fmt.Errorf("render trajectory: %w", err)
		}
		if err := f.Close(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Capture file (pcap or pcapng)")
	flag.IntVar(&cfg.Port, "port", 5065, "UDP destination port to decode (0 for all)")
	flag.StringVar(&cfg.PNGFile, "png", "", "Write the trajectory plot to this PNG file")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Do not print the summary to stderr")
	flag.Parse()

	if cfg.PCAPFile == "" {
		log.Fatal("-pcap is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("replay failed: %v", err)
	}
	if !cfg.Quiet {
		log.Printf("packets=%d udp=%d records=%d decode_errors=%d",
			stats.Packets, stats.UDP, stats.Records, stats.DecodeErrors)
	}
}
