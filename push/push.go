package push

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nomis52/countbridge/cache"
)

// Protocol names accepted by New.
const (
	ProtocolPushgateway = "pushgateway"
	ProtocolRemoteWrite = "remote_write"
)

// Transport is a push destination that can be shut down.
type Transport interface {
	cache.Saver
	io.Closer
}

// Target describes where and how to push.
type Target struct {
	Protocol   string
	URL        string
	Job        string
	Instance   string
	Username   string
	Password   string
	Timeout    time.Duration
	Timestamps bool
}

// New creates the transport for t.Protocol. An empty protocol selects the
// Pushgateway.
func New(t Target, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch t.Protocol {
	case "", ProtocolPushgateway:
		g, err := NewGateway(GatewayConfig{
			URL:        t.URL,
			Job:        t.Job,
			Instance:   t.Instance,
			Username:   t.Username,
			Password:   t.Password,
			Timeout:    t.Timeout,
			Timestamps: t.Timestamps,
		}, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProtocolRemoteWrite:
		w, err := NewRemoteWriter(RemoteWriteConfig{
			URL:      t.URL,
			Job:      t.Job,
			Instance: t.Instance,
			Username: t.Username,
			Password: t.Password,
			Timeout:  t.Timeout,
		}, WithRemoteWriteLogger(logger))
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported push protocol %q", t.Protocol)
	}
}
