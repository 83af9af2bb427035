package eventbus

import "time"

// Defaults applied by NewClient and DefaultConfig.
const (
	DefaultURL              = "wss://localhost:10443/kiwibus"
	DefaultAutoConnect      = false
	DefaultAutoUnregister   = true
	DefaultReconnect        = true
	DefaultReconnectDelay   = 10 * time.Second
	DefaultMockMode         = false
	DefaultDebugMode        = false
	DefaultSendTimeout      = 10 * time.Second
	DefaultMaxTokenRetries  = 1
	DefaultDialTimeout      = 30 * time.Second
	DefaultWriteChannelSize = 100
)

// Config is the settings surface of a Client.
type Config struct {
	ID               string
	URL              string
	AutoConnect      bool
	AutoUnregister   bool
	Reconnect        bool
	ReconnectDelay   time.Duration
	MockMode         bool
	DebugMode        bool
	SendTimeout      time.Duration
	MaxTokenRetries  int
	DialTimeout      time.Duration
	WriteChannelSize int
	PingInterval     time.Duration
	Headers          map[string][]string
}

// DefaultConfig returns a Config with every documented default filled in.
func DefaultConfig() Config {
	return Config{
		ID:               "kiwibus",
		URL:              DefaultURL,
		AutoConnect:      DefaultAutoConnect,
		AutoUnregister:   DefaultAutoUnregister,
		Reconnect:        DefaultReconnect,
		ReconnectDelay:   DefaultReconnectDelay,
		MockMode:         DefaultMockMode,
		DebugMode:        DefaultDebugMode,
		SendTimeout:      DefaultSendTimeout,
		MaxTokenRetries:  DefaultMaxTokenRetries,
		DialTimeout:      DefaultDialTimeout,
		WriteChannelSize: DefaultWriteChannelSize,
	}
}
