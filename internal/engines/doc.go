// Package engines provides synthesis engine implementations: Piper and gTTS
// subprocess engines, a deterministic fake for tests and headless runs, and
// a caching decorator.
package engines
