// Package domain contains the core domain entities and value objects for veilcap.
//
// This package represents the innermost layer of the architecture. It has
// no dependencies on infrastructure concerns (capture backends, container
// writers, logging) and contains only pure data and business rules.
//
// # Entities
//
//   - [Rect]: An axis-aligned rectangle in global screen coordinates
//   - [Display]: An enumerated display with pixel dimensions and global bounds
//   - [Window]: An on-screen window as reported by the window service
//   - [MaskedWindow]: A window selected for masking, with its visible regions
//   - [FrameBuffer]: A planar video frame delivered by the capture service
//   - [StreamEvent]: The tagged variant routed from a capture stream to its output
//
// # Design Principles
//
// Domain entities are:
//   - Free of infrastructure dependencies
//   - Focused on invariants (disjoint visible regions, retimed timestamps)
//   - Testable without mocks or external systems
package domain
