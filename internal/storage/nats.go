package storage

import (
	"context"
	"strings"
	"time"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	nc "github.com/nats-io/nats.go"
)

// Nats is for connecting and publishing data to Nats.
type Nats struct {
	Basic  *nc.Conn
	Client *nc.EncodedConn
	Cfg    *config.NATS
}

var _nats *Nats

// InitNATS initializes Nats connection with configured values.
func InitNATS(cfg *config.NATS) (*Nats, error) {
	if _nats == nil {
		basic, err := nc.Connect(
			strings.Join(cfg.Addresses, ","),
			nc.Name("Exchangeloader Publisher"),
			nc.Timeout(time.Duration(cfg.ReqTimeoutSec)*time.Second),
			nc.PingInterval(-1),
			nc.NoReconnect(),
			nc.UserInfo(cfg.Username, cfg.Password),
		)
		if err != nil {
			return nil, err
		}

		// Client for structured data publish.
		client, err := nc.NewEncodedConn(basic, nc.JSON_ENCODER)
		if err != nil {
			return nil, err
		}

		_nats = &Nats{
			Basic:  basic,
			Client: client,
			Cfg:    cfg,
		}
		register(config.NATSSTORAGE, _nats)
	}

	return _nats, nil
}

// CommitSnapshot publishes the rebuilt option list to Nats.
func (n *Nats) CommitSnapshot(_ context.Context, s Snapshot) error {
	err := n.Client.Publish(n.Cfg.SubjectBaseName+".options", &s)
	if err != nil {
		return err
	}

	// Client library of Nats buffers and pushes the data to server by itself,
	// flush is just to confirm.
	return n.Client.Flush()
}
