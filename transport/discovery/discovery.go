// Package discovery announces board servers on the local network over mDNS
// and finds the ones already running.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of board servers
const ServiceType = "_collabboard._tcp"

// DefaultBrowseTimeout is how long Browse listens for answers
const DefaultBrowseTimeout = 2 * time.Second

// Peer is a board server found on the network
type Peer struct {
	Instance string
	Host     string
	Addr     string // host:port, IPv4 when available
	Info     []string
}

// Advertiser keeps a board server announced until Shutdown
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces a server listening on port. The instance name
// defaults to the machine's hostname.
func Advertise(instance string, port int, info ...string) (*Advertiser, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	service, err := newService(instance, "", port, nil, info)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

func newService(instance, hostName string, port int, ips []net.IP, info []string) (*mdns.MDNSService, error) {
	if len(info) == 0 {
		info = []string{"collabboard"}
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", hostName, port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Browse queries the local network for board servers and returns every one
// that answered within timeout.
func Browse(timeout time.Duration) ([]Peer, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var peers []Peer
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for e := range entries {
			p, ok := peerFromEntry(e)
			if !ok || seen[p.Addr] {
				continue
			}
			seen[p.Addr] = true
			peers = append(peers, p)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done

	if err != nil {
		return nil, fmt.Errorf("mDNS query failed: %w", err)
	}
	return peers, nil
}

// peerFromEntry keeps entries of our service type that carry an address
func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.Port == 0 || !strings.Contains(e.Name, ServiceType) {
		return Peer{}, false
	}

	var ip net.IP
	switch {
	case e.AddrV4 != nil:
		ip = e.AddrV4
	case e.AddrV6 != nil:
		ip = e.AddrV6
	default:
		return Peer{}, false
	}

	instance := strings.TrimSuffix(e.Name, "."+ServiceType+".local.")
	return Peer{
		Instance: instance,
		Host:     strings.TrimSuffix(e.Host, "."),
		Addr:     net.JoinHostPort(ip.String(), fmt.Sprint(e.Port)),
		Info:     e.InfoFields,
	}, true
}
