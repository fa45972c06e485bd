// Package proxy forwards requests to the upstream API with a rotated key.
//
// Every request under the configured prefix takes the next key from the
// store and is relayed with the key attached. Routes containing /openai/ or
// /embeddings carry it as "Authorization: Bearer <key>"; all others carry it
// as the key query parameter. The upstream response (status, headers, body)
// is streamed back unmodified apart from hop-by-hop headers.
//
// # Running the Proxy
//
//	srv, err := proxy.NewServer(proxy.ServerOptions{
//	    Config: cfg,
//	    Keys:   store,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx) // Blocks until ctx is done or a handler faults
//
// # How It Works
//
//  1. Translator reads the body and selects the next key
//  2. Headers are cleaned and the key is placed on the outbound request
//  3. httputil.ReverseProxy sends it to the upstream
//  4. Transport failures become a 500 with a JSON error body
//  5. Metrics and the audit log record the outcome
package proxy
