// Package llm provides an OpenAI-compatible chat client for structured
// generation (OpenRouter by default).
//
// CompleteStructured sends a system prompt and a multimodal user message
// (text and inline images) with a JSON Schema response format and decodes the
// reply into a Go value. Code fences and surrounding prose are tolerated.
//
// # Retry Behaviour
//
// Transport failures (HTTP 408/429/5xx, network timeouts, empty content) are
// retried with exponential backoff (base 1s, max 10s, up to five attempts by
// default). Output that does not decode is re-requested up to the malformed
// retry budget and then reported as a MalformedOutputError carrying the last
// raw text. An explicit refusal is returned at once as a RefusalError.
// Both match services.ErrRefusal / services.ErrMalformed with errors.Is.
// Context cancellation aborts retries immediately.
package llm
