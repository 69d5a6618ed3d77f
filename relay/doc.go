// Package relay implements the PhantomBand relay: it accepts client
// connections on any transport, runs the handshake, keeps a registry of
// client session keys, and echoes Data on the circuits each connection
// created.
//
// Every connection is served by its own goroutine. A connection that sends
// a frame the relay cannot authenticate or decode, or a message out of turn,
// is aborted on its own; the relay logs it and keeps serving everyone else.
//
//	cfg, err := relay.LoadFile("relay.toml")
//	srv, err := relay.NewServer(cfg, relay.NewRegistry())
//	tr, err := cfg.NewTransport()
//	err = srv.ListenAndServe(ctx, tr, cfg.ListenAddress)
//
// Connection, frame and abort counters are exported to Prometheus and can be
// served with ServeMetrics.
package relay
