// Package natsclient wraps a core NATS connection for fire-and-forget
// publishing.
//
// The engine publishes one JSON event per operation state change; the client
// only has to connect, report its status, publish and drain on shutdown:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithClientName("visionflow"),
//		natsclient.WithStatusCallback(core.RecordNATSStatus),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
// Publish fails fast with a transient ErrNoConnection while the connection is
// down; nats.go buffers nothing on the caller's behalf in that state.
package natsclient
