// Package speech turns canonical audio into text and reply text back into
// audio. Both directions are external service calls; the interesting part is
// the failure split, which the dispatch loop maps to distinct user replies.
package speech

import "errors"

var (
	// ErrRecognitionFailed means the audio reached the service but nothing
	// intelligible came back.
	ErrRecognitionFailed = errors.New("could not understand audio")

	// ErrRecognitionUnavailable means the recognition service itself failed.
	ErrRecognitionUnavailable = errors.New("speech recognition service unavailable")

	ErrSynthesisFailed = errors.New("speech synthesis failed")
)
