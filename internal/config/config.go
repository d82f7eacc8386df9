// Package config loads server and peer settings. Every value resolves with
// the same priority: CLI flag, then environment variable, then default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAddr           = ":8080"
	DefaultStaticDir      = "./static"
	DefaultRingTimeout    = 30 * time.Second
	DefaultSendBuffer     = 256
	DefaultMaxMessageSize = 64 * 1024 // enough for SDP with many candidates
	DefaultLogLevel       = "info"

	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultCodec     = "json"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

type Server struct {
	Addr           string
	StaticDir      string
	RingTimeout    time.Duration
	SendBuffer     int
	MaxMessageSize int64
	MDNS           bool
	LogLevel       string
	LogJSON        bool
}

// ServerOptions carries CLI flag values; zero values mean "not set".
type ServerOptions struct {
	Addr           string
	StaticDir      string
	RingTimeout    string
	SendBuffer     int
	MaxMessageSize int64
	MDNS           bool
	LogLevel       string
	LogJSON        bool
}

func LoadServer(opts ServerOptions) (*Server, error) {
	ringTimeout := DefaultRingTimeout
	if raw := pick(opts.RingTimeout, "DUO_RING_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ring timeout %q: %w", raw, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("ring timeout must not be negative, got %s", d)
		}
		ringTimeout = d
	}

	sendBuffer, err := pickInt(int64(opts.SendBuffer), "DUO_SEND_BUFFER", DefaultSendBuffer)
	if err != nil {
		return nil, err
	}
	maxMessageSize, err := pickInt(opts.MaxMessageSize, "DUO_MAX_MESSAGE_SIZE", DefaultMaxMessageSize)
	if err != nil {
		return nil, err
	}

	return &Server{
		Addr:           pick(opts.Addr, "DUO_ADDR", DefaultAddr),
		StaticDir:      pick(opts.StaticDir, "DUO_STATIC_DIR", DefaultStaticDir),
		RingTimeout:    ringTimeout,
		SendBuffer:     int(sendBuffer),
		MaxMessageSize: maxMessageSize,
		MDNS:           opts.MDNS || envBool("DUO_MDNS"),
		LogLevel:       pick(opts.LogLevel, "LOG_LEVEL", DefaultLogLevel),
		LogJSON:        opts.LogJSON || envBool("LOG_JSON"),
	}, nil
}

// Port extracts the numeric port from Addr, for mDNS advertisement.
func (c *Server) Port() (int, error) {
	i := strings.LastIndex(c.Addr, ":")
	if i < 0 {
		return 0, fmt.Errorf("address %q has no port", c.Addr)
	}
	return strconv.Atoi(c.Addr[i+1:])
}

type Peer struct {
	ServerURL  string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	NoMedia    bool
	LogLevel   string
}

type PeerOptions struct {
	ServerURL  string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	NoMedia    bool
	LogLevel   string
}

func LoadPeer(opts PeerOptions) (*Peer, error) {
	serverURL := pick(opts.ServerURL, "DUO_SERVER", DefaultServerURL)
	if !strings.HasPrefix(serverURL, "ws://") && !strings.HasPrefix(serverURL, "wss://") {
		return nil, fmt.Errorf("server URL must use ws:// or wss://, got %q", serverURL)
	}

	codec := pick(opts.Codec, "DUO_CODEC", DefaultCodec)
	if codec != "json" && codec != "msgpack" {
		return nil, fmt.Errorf("codec must be json or msgpack, got %q", codec)
	}

	return &Peer{
		ServerURL:  serverURL,
		Codec:      codec,
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		NoMedia:    opts.NoMedia || envBool("DUO_NO_MEDIA"),
		LogLevel:   pick(opts.LogLevel, "LOG_LEVEL", "warn"),
	}, nil
}

// HTTPBase turns the websocket URL into the http(s) origin of the server.
func (c *Peer) HTTPBase() string {
	u := strings.Replace(c.ServerURL, "ws", "http", 1)
	return strings.TrimSuffix(u, "/ws")
}

func (c *Peer) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Peer) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
	}
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return def
}

func pickInt(flag int64, env string, def int64) (int64, error) {
	if flag > 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid %s %q: must be a positive integer", env, v)
		}
		return n, nil
	}
	return def, nil
}

func envBool(env string) bool {
	b, _ := strconv.ParseBool(os.Getenv(env))
	return b
}
