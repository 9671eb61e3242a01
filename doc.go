// Package camstream bridges a camera capture source with a fixed-cadence
// streaming pipeline that encodes and transmits raw frames over the network.
//
// The package solves one problem well: receiving asynchronously-produced
// camera frames (arbitrary pixel format, variable size, delivered on a
// capture-completion callback) and feeding them at a fixed cadence into a
// consumer that expects uniform timing — without blocking either side,
// without unbounded memory, and without the two sides racing on a buffer.
//
// # Architecture
//
// Data flows through four pieces:
//
//	capture source → completion handler → frame store → cadence pump → sink
//
// The frame store is a single-slot mailbox holding only the latest completed
// frame; if the pump cannot keep up, newer frames overwrite older ones
// (drop, never queue). The pump ticks at a fixed period and stamps every
// emitted frame with a synthetic timestamp (tick count × period), so the
// output stream has perfectly uniform spacing regardless of capture jitter.
//
// # Quick start
//
// Stream a camera to RTP/H.264 over UDP:
//
//	source, err := camstream.NewCameraSource(camstream.CameraConfig{
//	    Device: "/dev/video0",
//	    Width:  800,
//	    Height: 600,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sink, err := camstream.NewUDPSink(camstream.UDPSinkConfig{
//	    Host: "192.168.1.50",
//	    Port: 5000,
//	}, source.Geometry(), 30)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bridge, err := camstream.NewBridge(camstream.BridgeConfig{FPS: 30}, source, sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := bridge.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Stop()
//
//	<-bridge.Done()
//
// For development without camera hardware, [NewSimSource] produces synthetic
// frames at a jittered interval through the same capture interface.
//
// # Delivery semantics
//
// Best-effort by design: frame drop (capture faster than the cadence) and
// frame duplication (capture slower than the cadence) are normal operation,
// not errors. The bridge targets exactly one producer, one consumer, one
// destination.
//
// # Dependencies
//
// The camera source and the UDP sink require GStreamer 1.x at runtime
// (gstreamer1.0-plugins-base/good/ugly and gstreamer1.0-libav for x264enc
// and rtph264pay). The store, pump, bridge, and simulated source have no
// native dependencies and are fully testable without GStreamer.
package camstream
