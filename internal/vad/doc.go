// Package vad drives a Silero ONNX voice-activity classifier window by
// window and assembles the classified windows into finished speech
// segments, honoring minimum-speech, minimum-silence, and maximum-speech
// duration bounds.
package vad 