// Package listen turns a live audio stream into discrete natural-note events.
//
// A [Session] opens an [AudioSource], conditions the incoming samples with a
// band-limiting filter chain, and on every scheduler tick estimates the pitch
// of the most recent block, snaps it to a natural note and passes it through
// a [StabilityGate]. Confirmed notes are delivered to the caller's callback.
//
// Detection behaviour is configured by a [DetectionPreset]; three are built
// in: "strict", "normal" and "piano".
package listen
