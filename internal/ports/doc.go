// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the capture-orchestration core and the
// operating system. They define what the session needs from the capture
// service, the window service, the device-notification service, and the
// container writers, without specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [DisplayEnumerator]: Enumerates displays eligible for capture
//   - [CaptureSource]: Opens per-display capture streams delivering samples
//   - [ContainerSink]: Accepts retimed samples and finalizes a container file
//   - [SinkFactory]: Constructs video and audio container sinks
//   - [WindowLister]: Reports the on-screen window list front to back
//   - [DeviceNotifier]: Reports default audio device identity and changes
//   - [Logger]: Structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// backends (xdg-desktop-portal, ffmpeg, fMP4, D-Bus). This separation keeps
// session logic testable with fakes and keeps platform glue at the edges.
package ports
