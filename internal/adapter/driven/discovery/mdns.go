// Package discovery advertises and finds duo servers on the local network
// over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	Service = "_duo._tcp"
	Domain  = "local."
)

type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers instance on every multicast interface until Shutdown.
func Advertise(instance string, port int, txt []string) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	log.Info().Str("instance", instance).Int("port", port).Msg("Advertising over mDNS")
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

// Server is one duo server found on the network.
type Server struct {
	Instance string
	Host     string
	Port     int
	Addrs    []net.IP
	Text     []string
}

// URL is the websocket endpoint, preferring IPv4.
func (s Server) URL() string {
	host := s.Host
	for _, ip := range s.Addrs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(s.Addrs) > 0 {
		host = s.Addrs[0].String()
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(s.Port)) + "/ws"
}

// Browse collects servers until ctx is done.
func Browse(ctx context.Context) ([]Server, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	var found []Server
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return found, nil
			}
			found = append(found, fromEntry(e))
		case <-ctx.Done():
			return found, nil
		}
	}
}

func fromEntry(e *zeroconf.ServiceEntry) Server {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Server{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Addrs:    addrs,
		Text:     e.Text,
	}
}
