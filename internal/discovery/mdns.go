// ABOUTME: mDNS service discovery for netclock time servers
// ABOUTME: Handles both advertisement (serve) and browsing (watch --discover)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is advertised by netclock time servers
	ServiceType = "_netclock._tcp"

	// DefaultPath is the time endpoint advertised in TXT records
	DefaultPath = "/time"

	browseWindow = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // TXT "path=", defaults to /time
	Logger      logger.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered time server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the server's HTTP time endpoint
func (s *ServerInfo) URL() string {
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     logger.OrNop(config.Logger),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces this time server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse continuously searches for time servers and reports them on Servers
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop queries repeatedly until Stop
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.query(browseWindow, func(server *ServerInfo) bool {
			select {
			case m.servers <- server:
				return true
			case <-m.ctx.Done():
				return false
			}
		})
	}
}

// Discover runs one query and returns the time endpoint URLs found
func (m *Manager) Discover(timeout time.Duration) []string {
	if timeout <= 0 {
		timeout = browseWindow
	}

	seen := make(map[string]bool)
	var urls []string
	m.query(timeout, func(server *ServerInfo) bool {
		u := server.URL()
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
		return true
	})
	return urls
}

// query runs one mDNS lookup, handing each entry to emit until it returns false
func (m *Manager) query(timeout time.Duration, emit func(*ServerInfo) bool) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		accepting := true
		for entry := range entries {
			server := entryToServer(entry)
			if server == nil || !accepting {
				continue
			}

			m.log.Debug("Discovered time server: %s at %s", server.Name, server.URL())
			accepting = emit(server)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		m.log.Debug("mDNS query failed: %v", err)
	}
	close(entries)
	<-done
}

// entryToServer converts an mDNS entry, or returns nil without an address
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	server := &ServerInfo{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Path: DefaultPath,
	}
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "path="); ok && v != "" {
			server.Path = v
		}
	}
	return server
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns the IPv4 addresses of interfaces that are up. A host
// with only loopback advertises 127.0.0.1 so local demos still resolve.
func getLocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	if len(ips) == 0 {
		ips = append(ips, net.IPv4(127, 0, 0, 1))
	}
	return ips, nil
}
