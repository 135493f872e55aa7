// Package server implements the HTTP surface of the colony counter.
//
// It serves a single embedded page and a small JSON API on top of gin. The
// page holds a session id and drives everything through the API; all state
// lives in the session package.
//
// # Routes
//
//	GET    /                                 embedded page
//	GET    /api/status                       readiness, versions, controls, limits
//	POST   /api/sessions                     create a session
//	GET    /api/sessions/:id                 snapshot
//	POST   /api/sessions/:id/image           upload (multipart field "image")
//	POST   /api/sessions/:id/process         run with {"min_area", "threshold"}
//	POST   /api/sessions/:id/reset           reset
//	DELETE /api/sessions/:id                 reset and discard
//	GET    /api/sessions/:id/original.png    original surface
//	GET    /api/sessions/:id/annotated.png   annotated surface
//
// Both surface routes accept ?format=base64 and then answer with
// {"width", "height", "image_base64", "mime_type"} instead of raw PNG.
//
// # Error Handling
//
// Errors are returned as
//
//	{"error": {"kind": "...", "message": "...", "detail": "..."}}
//
// where kind is one of the session.Kind* constants. The status code follows
// the kind:
//   - unsupported_type: 415
//   - too_large: 413
//   - decode_error: 422
//   - pipeline_not_ready: 503
//   - no_image_loaded, busy: 409
//   - invalid_params: 400
//   - unknown_session: 404
//   - processing_failure and anything else: 500
//
// # Usage
//
//	srv := server.New(cfg, engine, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
