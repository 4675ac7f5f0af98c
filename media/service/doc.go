// Package service is the layer between the transports (HTTP, WebSocket, MCP)
// and the media processor.
//
// MediaService validates requests, resolves presets and forwards everything
// else to the processor. Apart from CreateSession and ListSessions, the
// processor calls it makes are asynchronous: a nil error means the request
// was accepted, not that the session has acted on it.
//
// Usage:
//
//	proc := processor.New(processor.WithLogger(logger))
//	presets, _ := config.NewManager("presets", "default")
//	svc := service.NewMediaService(proc, presets, logger)
//
//	info, err := svc.CreateSession(ctx, service.CreateSessionRequest{})
//	err = svc.TrackEvent(ctx, info.ID, ev)
package service
