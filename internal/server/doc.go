// Package server implements the embedded HTTP/1.0 server.
//
// Every accepted connection carries exactly one request and is closed after
// the response. A request is authorized against the hierarchy password
// settings, resolved across the configured roots and then served in one of
// three ways:
//   - static content, typed by extension or by sniffing the first bytes
//   - server-parsed HTML, expanded by the Preprocessor
//   - a handler script, run through the handler pool
//
// Every response carries the Dash-Startup-Timestamp header so clients can
// tell that the server restarted.
//
// Invoke and Fetch run the same pipeline in-process without a socket:
//
//	srv, _ := server.New(cfg, server.Deps{Resolver: resolver})
//	go srv.ListenAndServe()
//	body, err := srv.Fetch(ctx, "/help/about.htm")
package server
