// Package ffmpeg writes capture output through ffmpeg subprocesses.
// Raw video frames are piped over stdin, audio over stdin plus a
// loopback TCP relay, and ffmpeg handles encoding and the container.
package ffmpeg
