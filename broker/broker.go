package broker

import (
	"context"
	"time"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/transportapi"
)

// CloudAuthConfig enables the optional cloud-auth step on the accept
// path. ProxyPubKey identifies the trusted proxy connection itself,
// exempting it from having to authorize against its own policy.
type CloudAuthConfig struct {
	Enabled     bool
	ProxyPubKey []byte
	Timeout     time.Duration
}

// Broker ties the server-side pieces together: a topic Registry, the
// connection Acceptor, an optional CloudAuth adapter, and the ambient
// Admin HTTP surface. cmd/selium-broker/main.go is the thin binary
// wrapping this.
type Broker struct {
	cfg       Config
	endpoint  transportapi.Endpoint
	registry  *Registry
	acceptor  *Acceptor
	admin     *Admin
	cloudAuth *CloudAuth
}

// New builds a Broker bound to endpoint. archiver may be nil (no tiered
// retention); cloudAuthCfg.Enabled false disables the cloud-auth step
// entirely.
func New(cfg Config, endpoint transportapi.Endpoint, archiver *msglog.Archiver, cloudAuthCfg CloudAuthConfig) *Broker {
	registry := NewRegistry(cfg.LogConfig(), archiver, ReqRepConfig{})

	var cloudAuth *CloudAuth
	if cloudAuthCfg.Enabled {
		cloudAuth = NewCloudAuth(registry, cloudAuthCfg.ProxyPubKey, cloudAuthCfg.Timeout)
	}

	return &Broker{
		cfg:       cfg,
		endpoint:  endpoint,
		registry:  registry,
		acceptor:  NewAcceptor(endpoint, registry, cloudAuth),
		admin:     NewAdmin(registry),
		cloudAuth: cloudAuth,
	}
}

// Run blocks serving connections (and, if cfg.AdminAddr is set, the admin
// HTTP surface) until ctx is canceled: ctx cancellation stops the accept
// loop so no new connections are admitted, Run then signals every topic
// closed and waits for their tasks (Registry.CloseAll), and finally
// closes the transport endpoint.
func (b *Broker) Run(ctx context.Context) error {
	if b.cfg.AdminAddr != "" {
		go func() {
			if err := b.admin.ListenAndServe(b.cfg.AdminAddr); err != nil {
				logging.Warningf("broker: admin surface stopped: %v", err)
			}
		}()
	}

	err := b.acceptor.Run(ctx)

	b.registry.CloseAll()
	_ = b.admin.Close()
	closeErr := b.endpoint.Close()
	if err == nil {
		err = closeErr
	}
	return err
}
