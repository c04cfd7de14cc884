package netraw

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const defaultTTL = 64

var serializeOptions = gopacket.SerializeOptions{
	ComputeChecksums: true,
	FixLengths:       true,
}

// BuildUDPDatagram 构建完整的 IP/UDP 报文 (含校验和)
//
// 根据 dst 的地址族选择 IPv4 或 IPv6 头部，src 与 dst 必须属于同一地址族。
func BuildUDPDatagram(src, dst net.IP, srcPort, dstPort int, payload []byte) ([]byte, error) {
	if dst == nil || src == nil {
		return nil, fmt.Errorf("source and destination address are required")
	}
	if srcPort < 0 || srcPort > 65535 || dstPort < 0 || dstPort > 65535 {
		return nil, fmt.Errorf("invalid udp port %d -> %d", srcPort, dstPort)
	}

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}

	var network gopacket.SerializableLayer
	if dst4 := dst.To4(); dst4 != nil {
		src4 := src.To4()
		if src4 == nil {
			return nil, fmt.Errorf("address family mismatch: %s -> %s", src, dst)
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			Id:       uint16(rand.Intn(65535)),
			TTL:      defaultTTL,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src4,
			DstIP:    dst4,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		if src.To4() != nil {
			return nil, fmt.Errorf("address family mismatch: %s -> %s", src, dst)
		}
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   defaultTTL,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src.To16(),
			DstIP:      dst.To16(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, network, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize udp datagram: %w", err)
	}
	return buf.Bytes(), nil
}
