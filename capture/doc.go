// Package capture provides the audio sources a listening session reads
// from: a live microphone captured through miniaudio (malgo) and a file
// replay source decoded with ffmpeg.
package capture
