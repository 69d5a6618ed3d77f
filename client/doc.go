// Package client implements the client side of a PhantomBand circuit.
//
// A [Circuit] walks a fixed sequence of states:
//
//	Idle -> Connecting -> AwaitingConnectResponse -> RelayKeyEstablished
//	     -> AwaitingCircuitCreated -> CircuitEstablished -> Active
//	     -> Closed | Failed
//
// [Circuit.Connect] performs the dial and both handshake round trips.
// [Circuit.Send] and [Circuit.Receive] exchange Data messages while Active,
// and [Circuit.Close] sends Disconnect. Every failure is reported as a
// [*CircuitError] carrying a [FailureReason]:
//
//	c, _ := client.NewCircuit(tr, kex, client.Options{CircuitID: 12345})
//	if err := c.Connect(ctx, "127.0.0.1:8080"); err != nil {
//	    if reason, ok := client.ReasonOf(err); ok && reason == client.RelayRejected {
//	        // ...
//	    }
//	}
//	defer c.Close()
//	_ = c.Send(ctx, []byte("Hello PhantomBand!"))
//	echo, err := c.Receive(ctx)
//
// A transport error on an Active circuit closes it. Crypto, serialization and
// protocol errors fail it. Finished circuits reject every operation with
// [ErrInvalidState]; there is no reconnection.
//
// [Config] is loaded from TOML and builds the transport and key exchange a
// circuit needs.
package client
