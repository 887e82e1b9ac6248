package testutil

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// LoadPCAPUDPPayloads reads a pcap capture and returns the UDP payload of
// every packet in order, discarding the Ethernet/IPv4/UDP headers. Used to
// drive a vendor decoder's DecodeBeacon/DecodeData/DecodeReport against a
// real captured radar session instead of a hand-built byte slice.
//
// Reads through pcapgo.Reader (gopacket.Packet, layers.LayerTypeUDP,
// *layers.UDP.Payload) rather than gopacket/pcap.OpenOffline: a capture
// file fixture never needs libpcap's live-capture path or its cgo
// dependency, only the ability to decode an existing file.
func LoadPCAPUDPPayloads(r io.Reader) ([][]byte, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("testutil: open pcap: %w", err)
	}

	var payloads [][]byte
	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("testutil: read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Lazy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		payloads = append(payloads, append([]byte(nil), udp.Payload...))
	}
	return payloads, nil
}
