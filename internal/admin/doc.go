// Package admin serves the management endpoints of keyrelay.
//
// # Endpoints
//
//	GET /health      200 {"status":"healthy","apiKeysConfigured":N,"currentKeyIndex":C}
//	GET /rotate-key  200 {"message":...,"previousIndex":P,"currentIndex":C,"totalKeys":N}
//	                 400 {"error":"no API keys configured"}
//
// Health always answers 200 while the process is serving, including with
// zero keys configured. Rotation advances the cursor without forwarding a
// request and leaves state untouched when it fails.
//
// Both handlers talk to the key store directly; they never reach the
// upstream.
package admin
