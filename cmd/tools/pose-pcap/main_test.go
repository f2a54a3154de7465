package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/security"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

func writePCAP(t *testing.T, port int, recs []tracking.DetectionRecord) string {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, rec := range recs {
		payload, err := json.Marshal(rec)
		require.NoError(t, err)

		ip := &layers.IPv4{
			Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
		}
		udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(port)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		buf := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(buf,
			gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
			eth, ip, udp, gopacket.Payload(payload)))

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: base.Add(time.Duration(i) * 33 * time.Millisecond), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}

	path := filepath.Join(t.TempDir(), "stream.pcap")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
	return path
}

func success(ts, x float64) tracking.DetectionRecord {
	return tracking.DetectionRecord{
		Timestamp:   ts,
		Success:     true,
		Translation: pose.Vec3{x, 0.2, 0.9},
		Orientation: pose.Identity().Basis(),
	}
}

func TestRun_CSVAndPNG(t *testing.T) {
	path := writePCAP(t, 5065, []tracking.DetectionRecord{
		success(100, 0.1),
		tracking.Failure(100.033),
		success(100.066, 0.15),
	})
	pngPath := filepath.Join(t.TempDir(), "trajectory.png")

	var out bytes.Buffer
	stats, err := run(context.Background(), Config{PCAPFile: path, Port: 5065, PNGFile: pngPath}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"100", "true", "0.1", "0.2", "0.9"}, rows[1][1:6])
	assert.Equal(t, "false", rows[2][2])
	assert.Empty(t, rows[2][3])
	assert.Len(t, rows[2], len(csvHeader))

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

func TestRun_OtherPortIgnored(t *testing.T) {
	path := writePCAP(t, 6000, []tracking.DetectionRecord{success(1, 0)})
	var out bytes.Buffer
	stats, err := run(context.Background(), Config{PCAPFile: path, Port: 5065}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Records)
	assert.Equal(t, 1, stats.Packets)
	assert.Equal(t, 0, stats.UDP)
}

func TestRun_MissingFile(t *testing.T) {
	_, err := run(context.Background(), Config{PCAPFile: filepath.Join(t.TempDir(), "nope.pcap")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_PNGWithoutSuccess(t *testing.T) {
	path := writePCAP(t, 5065, []tracking.DetectionRecord{tracking.Failure(1)})
	_, err := run(context.Background(), Config{PCAPFile: path, Port: 5065, PNGFile: filepath.Join(t.TempDir(), "x.png")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_PNGOutsideAllowedDirs(t *testing.T) {
	path := writePCAP(t, 5065, []tracking.DetectionRecord{success(1, 0)})
	_, err := run(context.Background(), Config{PCAPFile: path, Port: 5065, PNGFile: "/proc/trajectory.png"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, security.ErrOutsideDir)
}
