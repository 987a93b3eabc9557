// Package metrics records task, file and watch activity.
//
// Components receive a Recorder and default to NoopRecorder, so call sites
// never nil-check. The dev server swaps in a PrometheusRecorder and exposes
// its registry through HTTPHandler.
package metrics
