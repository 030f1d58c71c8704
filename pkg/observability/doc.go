// Package observability exports custody engine traces and metrics over OTLP.
//
// The engine opens one span per operation with TrackOperation and counts
// commits, denials, write conflicts and integrity outcomes on the same
// provider. A nil *Provider is a valid no-op, so tests and lite mode can
// skip telemetry entirely.
//
//	p, err := observability.New(ctx, cfg)
//	defer p.Shutdown(ctx)
//	ctx, done := p.TrackOperation(ctx, "custody.transfer",
//		observability.CustodyOperation("transfer", evidenceID, id)...)
//	defer func() { done(err) }()
package observability
