// Package webhooks turns raw provider callbacks into pipeline envelopes.
//
// Receive acknowledges almost everything: unknown channels get 404, forged
// signatures 401, and a saturated ingest queue 503; every other outcome is a
// 2xx so providers stop retrying payloads the pipeline has already judged.
// Challenge handshakes, tenant resolution from provider account ids,
// per-tenant signature verification, and burst debouncing all run before the
// channel adapter parses the payload.
package webhooks
