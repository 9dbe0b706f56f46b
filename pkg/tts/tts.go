// Package tts speaks reply text through the robot's speaker.
//
// Backends are local command-line synthesizers (piper, espeak-ng). All of
// them implement Speaker, and Chain tries several in order so the robot
// still says something when the preferred voice is missing.
//
// Example usage:
//
//	piper, _ := tts.NewPiper(
//	    tts.WithModel("models/ko_KR-sunhi-medium.onnx"),
//	)
//	espeak, _ := tts.NewEspeak(tts.WithVoice("ko"))
//	speaker, _ := tts.NewChain(piper, espeak)
//
//	err := speaker.Speak(ctx, "안녕하세요!")
package tts

import (
	"context"
	"strings"
)

// Speaker plays text as speech. Speak returns once playback has finished.
type Speaker interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Speak synthesizes and plays text. Empty text fails with ErrEmptyText.
	Speak(ctx context.Context, text string) error
}

// Clean strips characters the synthesizers read out literally or choke
// on: emoji, pictographs, and control runes. Whitespace runs collapse to
// one space.
func Clean(text string) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t' || r == ' ':
			space = b.Len() > 0
			continue
		case r < 0x20, r == 0x7f:
			continue
		case isPictograph(r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, symbols and pictographs
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0x200D, r >= 0xFE00 && r <= 0xFE0F: // ZWJ, variation selectors
		return true
	}
	return false
}
