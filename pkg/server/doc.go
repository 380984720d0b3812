// Package server is the fundsavy HTTP server.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /groups, /groups/{id}        group documents (when a local store is configured)
//	POST /auth/signup, /auth/login    email sign-up and sign-in
//	GET  /auth/google                 redirect to Google, with a state cookie
//	GET  /auth/google/callback
//	POST /auth/phone                  send a verification code
//	POST /auth/phone/verify           sign in with the code
//	POST /auth/phone/resend           replace the code
//	POST /auth/logout
//	GET  /auth/me                     the signed-in principal
//	GET  /ws/groups/{id}              live chat screen
//
// Successful sign-ins start a session and set the session cookie. Invalid
// forms are answered with 422 and the per-field messages.
//
// The live screen is a WebSocket that receives one JSON chat.View per state
// change. The client may send {"group": "<id>"} to switch groups or
// {"reload": true} to retrieve the current one again. The stream is closed
// when the session ends.
package server
