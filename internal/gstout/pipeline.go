// Package gstout implements the outbound streaming sink: a GStreamer
// pipeline fed through appsrc that converts, H.264-encodes, RTP-packetizes
// and sends raw frames to a UDP destination.
package gstout

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Config contains configuration for outbound pipeline creation.
type Config struct {
	// Host is the UDP destination address (required).
	Host string
	// Port is the UDP destination port (required).
	Port int
	// Width and Height describe the raw input frames.
	Width  int
	Height int
	// Format is the raw input pixel format tag (e.g. "BGRx").
	Format string
	// FPS is the nominal input framerate used in the appsrc caps.
	FPS float64
	// BitrateKbps is the x264 target bitrate in kbit/s. 0 keeps the
	// encoder default.
	BitrateKbps uint
	// KeyIntMax is the maximum keyframe interval in frames. 0 keeps the
	// encoder default.
	KeyIntMax uint
}

// PipelineElements holds references to the pipeline elements needed for
// pushing, reconfiguration and cleanup.
type PipelineElements struct {
	Pipeline *gst.Pipeline
	AppSrc   *app.Source
	Encoder  *gst.Element
	UDPSink  *gst.Element
}

// x264 property values (GStreamer enums set by ordinal, see
// gst-inspect-1.0 x264enc): tune flags bit for zerolatency, preset ordinal
// for ultrafast.
const (
	x264TuneZerolatency   = 0x00000004
	x264PresetUltrafast   = 1
	rtpH264PayloadType    = 96
	rtpConfigIntervalSecs = 1
)

// CreatePipeline creates and configures the outbound GStreamer pipeline:
//
//	appsrc → videoconvert → capsfilter(I420) → x264enc →
//	rtph264pay → udpsink
//
// The pipeline is configured but NOT started (state remains NULL).
// Caller must call pipeline.SetState(gst.StatePlaying) to start.
func CreatePipeline(cfg Config) (*PipelineElements, error) {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	// Live source with TIME format so PTS/duration on pushed buffers drive
	// downstream timing. block=false: the pump skips ticks on backpressure
	// instead of waiting inside the push.
	appsrc.SetProperty("is-live", true)
	appsrc.SetProperty("block", false)
	appsrc.SetProperty("format", 3) // GST_FORMAT_TIME
	appsrc.SetProperty("caps", gst.NewCapsFromString(buildRawCaps(cfg)))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	// Lock the encoder input to I420; x264enc negotiates it anyway but the
	// explicit capsfilter keeps conversion out of the encoder element.
	capsI420, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsI420.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=I420"))

	encoder, err := gst.NewElement("x264enc")
	if err != nil {
		return nil, fmt.Errorf("failed to create x264enc: %w", err)
	}
	encoder.SetProperty("tune", x264TuneZerolatency)
	encoder.SetProperty("speed-preset", x264PresetUltrafast)
	if cfg.BitrateKbps > 0 {
		encoder.SetProperty("bitrate", cfg.BitrateKbps)
	}
	if cfg.KeyIntMax > 0 {
		encoder.SetProperty("key-int-max", cfg.KeyIntMax)
	}

	payloader, err := gst.NewElement("rtph264pay")
	if err != nil {
		return nil, fmt.Errorf("failed to create rtph264pay: %w", err)
	}
	payloader.SetProperty("config-interval", rtpConfigIntervalSecs)
	payloader.SetProperty("pt", uint(rtpH264PayloadType))

	udpsink, err := gst.NewElement("udpsink")
	if err != nil {
		return nil, fmt.Errorf("failed to create udpsink: %w", err)
	}
	udpsink.SetProperty("host", cfg.Host)
	udpsink.SetProperty("port", cfg.Port)
	udpsink.SetProperty("auto-multicast", false)
	udpsink.SetProperty("sync", false)

	pipeline.AddMany(
		appsrc.Element,
		converter,
		capsI420,
		encoder,
		payloader,
		udpsink,
	)

	if err := gst.ElementLinkMany(
		appsrc.Element,
		converter,
		capsI420,
		encoder,
		payloader,
		udpsink,
	); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &PipelineElements{
		Pipeline: pipeline,
		AppSrc:   appsrc,
		Encoder:  encoder,
		UDPSink:  udpsink,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL and releases its resources.
// Safe to call on an already-destroyed pipeline.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildRawCaps builds the appsrc caps string for the negotiated geometry.
//
// Handles fractional framerates the same way the capture side does:
//   - fps >= 1.0: framerate = fps/1
//   - fps < 1.0:  framerate = 1/(1/fps)
func buildRawCaps(cfg Config) string {
	numerator := 1
	denominator := 1
	if cfg.FPS < 1.0 {
		denominator = int(1.0 / cfg.FPS)
	} else {
		numerator = int(cfg.FPS)
	}
	return fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		cfg.Format, cfg.Width, cfg.Height, numerator, denominator,
	)
}
