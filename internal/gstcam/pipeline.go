// Package gstcam implements hardware frame capture through a GStreamer
// pipeline terminated in an appsink. Completed frames are handed to a
// completion handler as reusable requests drawn from a fixed pool.
package gstcam

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Config contains configuration for camera pipeline creation.
type Config struct {
	// Device is the video device path (e.g. /dev/video0). Required when
	// Element is "v4l2src", ignored otherwise.
	Device string
	// Element selects the capture element: "v4l2src" (default) or
	// "libcamerasrc".
	Element string
	// Width and Height request the capture resolution.
	Width  int
	Height int
	// Format is the raw pixel format tag requested from the camera.
	Format string
	// FPS is the requested capture rate.
	FPS float64
	// Buffers is the number of in-flight capture requests (default 4).
	Buffers int
}

// PipelineElements holds references to the camera pipeline elements.
type PipelineElements struct {
	Pipeline *gst.Pipeline
	Source   *gst.Element
	AppSink  *app.Sink
}

// CreatePipeline creates and configures the camera capture pipeline:
//
//	v4l2src|libcamerasrc → videoconvert → capsfilter → appsink
//
// The appsink keeps only the newest buffer (max-buffers=1, drop=true) so a
// slow consumer sees fresh frames rather than a backlog. The pipeline is
// configured but NOT started.
func CreatePipeline(cfg Config) (*PipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	element := cfg.Element
	if element == "" {
		element = "v4l2src"
	}
	source, err := gst.NewElement(element)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", element, err)
	}
	if element == "v4l2src" && cfg.Device != "" {
		source.SetProperty("device", cfg.Device)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaptureCaps(cfg)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop old frames

	pipeline.AddMany(source, converter, capsfilter, appsink.Element)

	if err := gst.ElementLinkMany(source, converter, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &PipelineElements{
		Pipeline: pipeline,
		Source:   source,
		AppSink:  appsink,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL and releases its resources.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaptureCaps builds the capsfilter string for the requested geometry
// and rate. Sub-1fps rates use a reciprocal denominator.
func buildCaptureCaps(cfg Config) string {
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
