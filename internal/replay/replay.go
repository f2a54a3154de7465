// Package replay decodes published detection records back out of packet
// captures taken on the receiving side.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

var logf = monitoring.Prefixed("replay")

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Datagram is one decoded record with its capture metadata.
type Datagram struct {
	CapturedAt time.Time
	SrcPort    int
	DstPort    int
	Record     tracking.DetectionRecord
}

// Stats counts what a replay saw.
type Stats struct {
	Packets      int
	UDP          int
	Records      int
	DecodeErrors int
}

// Options filter a replay. A zero Port accepts every UDP datagram.
type Options struct {
	Port int
}

// ReadFile replays the capture at path.
func ReadFile(ctx context.Context, path string, opts Options, fn func(Datagram) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Read(ctx, f, opts, fn)
}

// Read replays a pcap or pcapng stream, calling fn for every decoded record
// in capture order. Payloads that are not records are counted and skipped.
// An error from fn stops the replay and is returned.
func Read(ctx context.Context, r io.Reader, opts Options, fn func(Datagram) error) (Stats, error) {
	var stats Stats
	src, link, err := openCapture(r)
	if err != nil {
		return stats, err
	}

	packets := gopacket.NewPacketSource(src, link)
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}
		stats.UDP++
		if len(udp.Payload) == 0 {
			continue
		}

		var rec tracking.DetectionRecord
		if err := json.Unmarshal(udp.Payload, &rec); err != nil {
			stats.DecodeErrors++
			logf("packet %d: not a detection record: %v", stats.Packets, err)
			continue
		}
		stats.Records++
		d := Datagram{
			CapturedAt: packet.Metadata().Timestamp,
			SrcPort:    int(udp.SrcPort),
			DstPort:    int(udp.DstPort),
			Record:     rec,
		}
		if err := fn(d); err != nil {
			return stats, err
		}
	}
}

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (gopacket.PacketDataSource, gopacket.Decoder, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, nil, fmt.Errorf("read capture header: %w", err)
	}

	var src packetSource
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open capture: %w", err)
	}
	return src, src.LinkType(), nil
}
