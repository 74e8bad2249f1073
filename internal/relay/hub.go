package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"heliotrack-server/internal/control"
)

// Hub relays events between control-panel connections. One Run goroutine
// owns the client set and all dispatch ordering, so handlers never run
// concurrently with each other; per-connection pumps only move frames in
// and out.
type Hub struct {
	store  *control.Store
	logger *slog.Logger

	events  chan event
	stopped chan struct{}

	// inside the Run goroutine only
	clients map[*Client]bool

	simInterval time.Duration
}

func NewHub(store *control.Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:       store,
		logger:      logger,
		events:      make(chan event, 64),
		stopped:     make(chan struct{}),
		clients:     make(map[*Client]bool),
		simInterval: control.SimulateInterval,
	}
}

// ServeConn registers a freshly upgraded connection and starts its pumps.
// The connect event is queued before the read pump starts, so the initial
// config push always precedes anything the client sends.
func (h *Hub) ServeConn(conn Conn, remoteAddr string) {
	c := newClient(h, conn, remoteAddr)
	h.post(event{kind: evConnect, client: c})
	go c.writePump()
	go c.readPump()
}

// IngestState injects a server-originated snapshot (e.g. field telemetry
// from the MQTT bridge) and relays it to every connected client.
func (h *Hub) IngestState(raw json.RawMessage) {
	h.post(event{kind: evIngest, raw: raw})
}

func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	case <-h.stopped:
	}
}

// Run processes events until ctx is cancelled, then tears every client down.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case evConnect:
		h.clients[ev.client] = true
		h.logger.Info("client connected", "remote", ev.client.remoteAddr, "clients", len(h.clients))
		h.pushConfig(ev.client)
	case evDisconnect:
		if h.clients[ev.client] {
			h.drop(ev.client)
			h.logger.Info("client disconnected", "remote", ev.client.remoteAddr, "clients", len(h.clients))
		}
	case evConfigUpdate:
		h.handleConfigUpdate(ev.client, ev.update)
	case evStateUpdate:
		h.relayState(ev.client, ev.raw)
	case evStartSimulator:
		h.startSimulator(ev.client)
	case evIngest:
		h.relayState(nil, ev.raw)
	case evUnknown:
		h.logger.Info("unrecognized event, dropping", "event", ev.name, "remote", ev.client.remoteAddr)
	}
}

// handleConfigUpdate merges first, then pushes the freshly merged store
// value to every other client. The sender's raw payload is never forwarded;
// every client view stays consistent with the single source of truth.
func (h *Hub) handleConfigUpdate(origin *Client, update control.ConfigUpdate) {
	merged := h.store.Merge(update)
	frame, err := encodeEnvelope(EventUpdateConfig, merged)
	if err != nil {
		h.logger.Error("encode config push failed", "error", err)
		return
	}
	for c := range h.clients {
		if c == origin {
			continue
		}
		if !c.trySend(frame) {
			h.logger.Warn("config push dropped", "remote", c.remoteAddr)
		}
	}
}

// relayState forwards a state snapshot verbatim to every client except the
// originator. origin is nil for server-originated snapshots.
func (h *Hub) relayState(origin *Client, raw json.RawMessage) {
	frame, err := json.Marshal(Envelope{Event: EventUpdateState, Payload: raw})
	if err != nil {
		h.logger.Error("encode state relay failed", "error", err)
		return
	}
	for c := range h.clients {
		if c == origin {
			continue
		}
		if !c.trySend(frame) {
			h.logger.Warn("state relay dropped", "remote", c.remoteAddr)
		}
	}
}

// pushConfig sends the current configuration to one client only.
func (h *Hub) pushConfig(c *Client) {
	frame, err := encodeEnvelope(EventUpdateConfig, h.store.Current())
	if err != nil {
		h.logger.Error("encode config push failed", "error", err)
		return
	}
	if !c.trySend(frame) {
		h.logger.Warn("config push dropped", "remote", c.remoteAddr)
	}
}

// startSimulator starts the 100ms telemetry simulator bound to c. A repeat
// request replaces the running simulator instead of stacking a second one.
func (h *Hub) startSimulator(c *Client) {
	if !h.clients[c] {
		return
	}
	if c.simCancel != nil {
		c.simCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.simCancel = cancel
	h.logger.Info("simulated telemetry started", "remote", c.remoteAddr)
	go h.runSimulator(ctx, c)
}

// runSimulator pushes one synthesized snapshot per tick to the requesting
// client only, until cancelled.
func (h *Hub) runSimulator(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.simInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st := control.Simulate(now, h.store.Current())
			frame, err := encodeEnvelope(EventUpdateState, st)
			if err != nil {
				h.logger.Error("encode simulated snapshot failed", "error", err)
				continue
			}
			c.trySend(frame)
		}
	}
}

// drop removes a client; the simulator is cancelled before the client is
// released so no tick fires against a torn-down connection.
func (h *Hub) drop(c *Client) {
	if c.simCancel != nil {
		c.simCancel()
		c.simCancel = nil
	}
	delete(h.clients, c)
	close(c.done)
	c.conn.Close()
}
