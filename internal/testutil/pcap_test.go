package testutil

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildPCAP assembles a minimal classic-pcap file (one little-endian global
// header, one packet) carrying a single Ethernet/IPv4/UDP frame whose
// payload is the given bytes. The packet is constructed by hand against the
// well-known pcap/Ethernet/IPv4/UDP on-wire layouts rather than captured, so
// the test has no external fixture file to keep in sync.
func buildPCAP(t *testing.T, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()

	udpLen := 8 + len(payload)
	ipLen := 20 + udpLen

	packet := make([]byte, 14+ipLen)

	// Ethernet header: dst MAC, src MAC, EtherType IPv4.
	copy(packet[0:6], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	copy(packet[6:12], []byte{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa})
	binary.BigEndian.PutUint16(packet[12:14], 0x0800)

	ip := packet[14:]
	ip[0] = 0x45 // version 4, IHL 5
	ip[1] = 0x00
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen))
	binary.BigEndian.PutUint16(ip[4:6], 0) // identification
	binary.BigEndian.PutUint16(ip[6:8], 0) // flags/fragment offset
	ip[8] = 64                             // TTL
	ip[9] = 17                             // protocol: UDP
	binary.BigEndian.PutUint16(ip[10:12], 0) // header checksum, unchecked by the decoder
	copy(ip[12:16], []byte{192, 168, 1, 50})
	copy(ip[16:20], []byte{239, 255, 0, 2})

	udp := ip[20:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	binary.BigEndian.PutUint16(udp[6:8], 0) // checksum, unchecked by the decoder
	copy(udp[8:], payload)

	var buf bytes.Buffer
	// Global header: magic, version 2.4, zeroed timezone/sigfigs, snaplen,
	// linktype 1 (Ethernet).
	binary.Write(&buf, binary.LittleEndian, uint32(0xa1b2c3d4))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(65535))
	binary.Write(&buf, binary.LittleEndian, uint32(1))

	// Packet record header: ts_sec, ts_usec, incl_len, orig_len.
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(len(packet)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(packet)))
	buf.Write(packet)

	return buf.Bytes()
}

func TestLoadPCAPUDPPayloadsExtractsPayload(t *testing.T) {
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	data := buildPCAP(t, 10024, 10024, want)

	payloads, err := LoadPCAPUDPPayloads(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadPCAPUDPPayloads: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if !bytes.Equal(payloads[0], want) {
		t.Errorf("payload = %x, want %x", payloads[0], want)
	}
}

func TestLoadPCAPUDPPayloadsRejectsBadMagic(t *testing.T) {
	_, err := LoadPCAPUDPPayloads(bytes.NewReader([]byte{0, 0, 0, 0}))
	if err == nil {
		t.Fatal("expected an error for a malformed capture")
	}
}
