// Package sender defines the capability boundary between the notification
// pipeline and per-channel delivery providers.
//
// A Sender implements delivery for exactly one Channel. Ordinary
// provider-side failures (busy gateway, invalid recipient) are reported as
// Result values with Success=false, never as errors or panics; only
// configuration mistakes surface as errors, and only at construction time
// via ValidateConfig. This keeps the orchestrator's fan-out logic free of
// provider-specific error handling.
//
// Senders are independent value types behind one interface, with free helper
// functions (OK, Failed) for building results. The package ships an email
// sender backed by Postmark, generic HTTP gateway senders for SMS and push,
// and a DevSender that writes messages to disk for local development.
package sender
