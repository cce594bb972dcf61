package tonal

import (
	"fmt"
	"math"
)

const (
	// MinFrequency is the lowest frequency mapped to a note (just below A0)
	MinFrequency = 27.0
	// MaxFrequency is the highest frequency mapped to a note (just above C8)
	MaxFrequency = 4200.0
	// ReferenceA4 is the concert pitch tuning reference
	ReferenceA4 = 440.0
	// ReferenceA4MIDI is the MIDI note number of A4
	ReferenceA4MIDI = 69

	// candidateSpread is how many semitones either side of the nearest
	// integer MIDI number are searched for a natural
	candidateSpread = 2
)

// naturalNames maps pitch classes (C = 0) to natural note names.
// Sharps map to the empty string.
var naturalNames = [12]string{"C", "", "D", "", "E", "F", "", "G", "", "A", "", "B"}

// Note is a natural note (A..G) with its scientific pitch octave
type Note struct {
	Name   string `json:"name"`
	Octave int    `json:"octave"`
}

// String returns scientific pitch notation, e.g. "A4"
func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}

// MIDI returns the MIDI note number, or -1 if Name is not a natural
func (n Note) MIDI() int {
	for pc, name := range naturalNames {
		if name != "" && name == n.Name {
			return (n.Octave+1)*12 + pc
		}
	}
	return -1
}

// IsZero reports whether n is the zero Note
func (n Note) IsZero() bool {
	return n == Note{}
}

// FrequencyToMIDI returns the fractional MIDI note number of freq
func FrequencyToMIDI(freq float64) float64 {
	return 12*math.Log2(freq/ReferenceA4) + ReferenceA4MIDI
}

// MIDIToFrequency returns the frequency of a (possibly fractional) MIDI note
func MIDIToFrequency(midi float64) float64 {
	return ReferenceA4 * math.Pow(2, (midi-ReferenceA4MIDI)/12)
}

// IsNatural reports whether a MIDI note is a natural (no sharp or flat)
func IsNatural(midi int) bool {
	return naturalNames[pitchClass(midi)] != ""
}

// NoteFromMIDI returns the natural note for midi
func NoteFromMIDI(midi int) (Note, bool) {
	name := naturalNames[pitchClass(midi)]
	if name == "" {
		return Note{}, false
	}
	return Note{
		Name:   name,
		Octave: int(math.Floor(float64(midi)/12)) - 1,
	}, true
}

func pitchClass(midi int) int {
	return ((midi % 12) + 12) % 12
}

// MapFrequency snaps a frequency to the nearest natural note.
//
// The nearest naturals among round(midi)±2 are compared and the closest is
// accepted only if it lies within snapTolerance semitones, so a clean
// accidental (e.g. C#4 at a tight tolerance) maps to no note at all rather
// than being forced onto a neighbour.
func MapFrequency(freq, snapTolerance float64) (Note, bool) {
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq < MinFrequency || freq > MaxFrequency {
		return Note{}, false
	}

	midi := FrequencyToMIDI(freq)
	center := int(math.Round(midi))

	bestMIDI := 0
	bestDistance := math.Inf(1)
	for candidate := center - candidateSpread; candidate <= center+candidateSpread; candidate++ {
		if !IsNatural(candidate) {
			continue
		}
		if d := math.Abs(midi - float64(candidate)); d < bestDistance {
			bestDistance = d
			bestMIDI = candidate
		}
	}

	if bestDistance > snapTolerance {
		return Note{}, false
	}
	return NoteFromMIDI(bestMIDI)
}
