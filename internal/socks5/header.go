package socks5

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// UDP encapsulation header sizes (RSV u16 + FRAG u8 + ATYP u8 + addr + port).
const (
	HeaderSizeIPv4 = 10
	HeaderSizeIPv6 = 22
)

// Encapsulate prepends the SOCKS5 UDP request header naming dst to payload.
// Domain-name destinations are not supported; the transport always resolves
// first.
func Encapsulate(dst netip.AddrPort, payload []byte) ([]byte, error) {
	addr := dst.Addr()
	if !addr.IsValid() {
		return nil, fmt.Errorf("socks5: invalid destination address")
	}

	var buf []byte
	if addr.Is4() {
		buf = make([]byte, 0, HeaderSizeIPv4+len(payload))
		buf = append(buf, 0x00, 0x00, 0x00, atypIPv4)
		b := addr.As4()
		buf = append(buf, b[:]...)
	} else {
		buf = make([]byte, 0, HeaderSizeIPv6+len(payload))
		buf = append(buf, 0x00, 0x00, 0x00, atypIPv6)
		b := addr.As16()
		buf = append(buf, b[:]...)
	}
	buf = binary.BigEndian.AppendUint16(buf, dst.Port())
	return append(buf, payload...), nil
}

// Decapsulate strips the SOCKS5 UDP header from an inbound datagram,
// returning the real source and the payload. Fragmented datagrams (FRAG
// other than 0) and domain-name sources are refused.
func Decapsulate(datagram []byte) (netip.AddrPort, []byte, error) {
	if len(datagram) < HeaderSizeIPv4 {
		return netip.AddrPort{}, nil, fmt.Errorf("socks5: datagram shorter than minimum header: %d bytes", len(datagram))
	}
	if datagram[2] != 0x00 {
		return netip.AddrPort{}, nil, fmt.Errorf("socks5: fragmented datagrams not supported (frag=%d)", datagram[2])
	}

	var src netip.Addr
	var rest []byte
	switch datagram[3] {
	case atypIPv4:
		src = netip.AddrFrom4([4]byte(datagram[4:8]))
		rest = datagram[8:]
	case atypIPv6:
		if len(datagram) < HeaderSizeIPv6 {
			return netip.AddrPort{}, nil, fmt.Errorf("socks5: datagram shorter than IPv6 header: %d bytes", len(datagram))
		}
		src = netip.AddrFrom16([16]byte(datagram[4:20]))
		rest = datagram[20:]
	case atypDomain:
		return netip.AddrPort{}, nil, ErrAddressTypeNotSupported
	default:
		return netip.AddrPort{}, nil, ErrInvalidResponse
	}

	port := binary.BigEndian.Uint16(rest[:2])
	return netip.AddrPortFrom(src, port), rest[2:], nil
}
