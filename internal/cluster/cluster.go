// Package cluster provides distributed coordination between computor-api
// instances using the alan UDP peer discovery library. It is optional: when
// no alan.Config is supplied the server runs as a single instance and every
// Cluster method is a no-op through a nil receiver check at the call site.
//
// Two concerns ride on top of alan here:
//   - Leader election for the deployment-release background worker (spec.md
//     §4.7), so only one instance polls for releasable deployments at a time.
//   - Presence fan-out for the WebSocket hub (spec.md §4.9), so a "user came
//     online/went offline" event raised on one instance reaches the others.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

const (
	// lockReleaseScheduler is the distributed lock name for the deployment
	// release worker described in spec.md §4.7.
	lockReleaseScheduler = "deployment-release-scheduler"

	msgTypePresence = "presence"
)

// PresenceEvent mirrors a local WebSocket hub presence change so that peer
// instances can update their own view of who is online.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type clusterMessage struct {
	Type     string        `json:"type"`
	Presence *PresenceEvent `json:"presence,omitempty"`
}

// Cluster wraps an alan instance with computor-api-specific coordination.
type Cluster struct {
	alan *alan.Alan
}

// New creates a Cluster from the server's alan configuration.
// Returns nil, nil if cfg is nil (clustering disabled, single instance).
func New(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	return &Cluster{alan: a}, nil
}

// Start begins the alan peer discovery system in the background. onPresence
// is invoked whenever a peer broadcasts a PresenceEvent. Start blocks until
// the context is cancelled and should be run in a goroutine.
func (c *Cluster) Start(ctx context.Context, onPresence func(PresenceEvent)) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("cluster peer joined", "addr", addr.String())
	})

	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("cluster peer left", "addr", addr.String())
	})

	handler := func(_ context.Context, msg alan.Message) {
		var cm clusterMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			slog.Warn("cluster: invalid message", "from", msg.Addr, "error", err)
			return
		}

		switch cm.Type {
		case msgTypePresence:
			if cm.Presence != nil && onPresence != nil {
				onPresence(*cm.Presence)
			}

			if msg.IsRequest() {
				c.alan.Reply(msg, []byte("ok")) //nolint:errcheck
			}

		default:
			slog.Debug("cluster: unknown message type", "type", cm.Type, "from", msg.Addr)
		}
	}

	return c.alan.Start(ctx, handler)
}

// Stop gracefully leaves the cluster.
func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// LockScheduler acquires the distributed lock that gates the deployment
// release worker. Blocks until the lock is acquired or the context is
// cancelled.
func (c *Cluster) LockScheduler(ctx context.Context) error {
	return c.alan.Lock(ctx, lockReleaseScheduler)
}

// UnlockScheduler releases the deployment release worker's lock.
func (c *Cluster) UnlockScheduler() error {
	return c.alan.Unlock(lockReleaseScheduler)
}

// BroadcastPresence tells peer instances that a user's WebSocket presence
// changed; peers receive it through the onPresence callback given to Start.
func (c *Cluster) BroadcastPresence(ctx context.Context, ev PresenceEvent) error {
	peers := c.alan.Peers()
	if len(peers) == 0 {
		return nil
	}

	data, err := json.Marshal(clusterMessage{Type: msgTypePresence, Presence: &ev})
	if err != nil {
		return fmt.Errorf("marshal presence message: %w", err)
	}

	broadcastCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = c.alan.SendAndWaitReply(broadcastCtx, data)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("broadcast presence: %w", err)
	}

	return nil
}

// Ready returns a channel that is closed when the cluster is ready.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
