// Package audio decodes WAV uploads into float32 PCM, resamples streamed
// audio to the recognizer's target rate, and computes simple signal
// measurements such as RMS for interim messages and audio-level metrics.
package audio 