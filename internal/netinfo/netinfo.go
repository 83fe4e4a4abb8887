// Package netinfo provides best-effort network metadata attached to
// activity intervals.
package netinfo

import "net"

// Info is the network metadata for one interval. Geolocation and speed are
// optional; they stay nil when no provider is configured.
type Info struct {
	IP        string
	Latitude  *float64
	Longitude *float64
	SpeedMbps *float64
}

// Prober resolves the current network metadata.
type Prober interface {
	Info() Info
}

// LocalProber reports the preferred outbound IP of this device.
type LocalProber struct{}

func (LocalProber) Info() Info {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return Info{}
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return Info{}
	}
	return Info{IP: addr.IP.String()}
}
