// Package inbound buffers provider-originated messages between webhook
// ingress and the processing pipeline.
//
// The Ingestor accepts messages on a bounded queue and processes them on a
// worker pool. Saturation surfaces as a rate-limit error at Submit time so
// the HTTP tier can answer 503 and let the provider redeliver.
package inbound
