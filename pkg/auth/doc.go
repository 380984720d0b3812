// Package auth defines the identity provider capabilities and the signed-in
// Session.
//
// # Providers
//
// Sign-in methods are separate capabilities so that each can be substituted
// on its own: CredentialProvider (email and password), OAuthProvider (a
// redirect round trip such as Google) and PhoneVerifier (a code sent by
// SMS). Provider combines them. See localauth for an in-memory
// implementation and googleauth for the Google code exchange.
//
// # Sessions
//
// There is no ambient "current user". A successful sign-in produces a
// Principal, Start turns it into a *Session, and the session travels in the
// request context:
//
//	sess := auth.Start(principal)
//	ctx := auth.WithSession(r.Context(), sess)
//
//	// later, in a handler
//	p, ok := auth.PrincipalFromContext(ctx)
//
// SignOut ends the session: Done is closed, Principal returns
// ErrSessionEnded and OnSignOut hooks run, which is where resources owned by
// the session (live screens, subscriptions) are released.
package auth
