// Package audio defines the PCM value types and device capabilities shared by
// the capture source and the speech pipeline, together with their concrete
// backends: PortAudio for microphone capture, oto/v3 for playback, and
// deterministic mock devices for tests and headless environments.
package audio
