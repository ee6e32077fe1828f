// Package engines contains the HTTP client for the GPT-SoVITS inference
// server. SovitsEngine implements the Synthesizer, ResourceFetcher and
// ModelLister contracts used by the scheduler, queue and catalog.
package engines
