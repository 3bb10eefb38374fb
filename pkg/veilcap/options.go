package veilcap

import (
	"io"

	"github.com/veilcap/veilcap/internal/ports"
)

// Logger is the structured logging interface embedders can implement.
type Logger = ports.Logger

// Option configures optional behavior of a Capture.
type Option func(*options)

type options struct {
	logger      ports.Logger
	displays    ports.DisplayEnumerator
	source      ports.CaptureSource
	sinks       ports.SinkFactory
	windows     ports.WindowLister
	devices     ports.DeviceNotifier
	classifier  func(StreamError) bool
	descriptorW io.Writer
}

func defaultOptions() options {
	return options{}
}

// WithLogger sets a custom logger. Without it, logging is discarded.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCaptureSource replaces the platform capture source.
func WithCaptureSource(source ports.CaptureSource) Option {
	return func(o *options) { o.source = source }
}

// WithDisplayEnumerator replaces the display enumeration.
func WithDisplayEnumerator(displays ports.DisplayEnumerator) Option {
	return func(o *options) { o.displays = displays }
}

// WithSinkFactory replaces the container sink factory.
func WithSinkFactory(sinks ports.SinkFactory) Option {
	return func(o *options) { o.sinks = sinks }
}

// WithWindowLister replaces the window listing used for masking.
func WithWindowLister(windows ports.WindowLister) Option {
	return func(o *options) { o.windows = windows }
}

// WithDeviceNotifier replaces the audio device change notifications.
func WithDeviceNotifier(devices ports.DeviceNotifier) Option {
	return func(o *options) { o.devices = devices }
}

// WithClassifier replaces the recoverable-error predicate built from
// Config.RecoverableCodes.
func WithClassifier(classifier func(StreamError) bool) Option {
	return func(o *options) { o.classifier = classifier }
}

// WithDescriptorWriter enables machine-readable JSONL descriptors on w,
// one line per output file plus a final stop line.
func WithDescriptorWriter(w io.Writer) Option {
	return func(o *options) { o.descriptorW = w }
}
