/*
Package authsdk performs authenticated calls against the tab API and keeps
exactly one valid credential coordinated across any number of concurrent
callers.

# Overview

A Client wraps every outbound request: it attaches the stored access token
as a bearer credential, and when the server answers 401 for a token that has
expired it renews the credential once and replays the call. Renewal is
single-flight. While one renewal is in progress every other call that needs
one queues behind it and is resumed, in arrival order, with the outcome.

	bus := authevents.New()
	store := tokenstore.New(memory.New(), bus)
	client := authsdk.NewClient(authsdk.Config{BaseURL: "https://tab.example.com"}, store, bus)

	if _, err := client.Login(ctx, authsdk.LoginRequest{Username: "alice", Password: pw}); err != nil {
		return err
	}

	var me tokenstore.UserProfile
	err := client.Get(ctx, "/api/users/me", &me)

Generic helper:

	me, err := authsdk.Fetch[tokenstore.UserProfile](ctx, client, "/api/users/me", authsdk.RequestOptions{})

# Errors

Every failure returned by the pipeline is an *Error with one of four kinds:

  - KindTransport: network failure or a non-2xx status other than a handled 401
  - KindDecode: the response body could not be decoded
  - KindAuth: 401 for a credential that is still structurally valid
  - KindRenewal: the session could not be renewed; tokens are cleared and the
    Navigator has been sent to the unauthenticated route

Use IsRenewal, IsAuth and StatusOf rather than inspecting fields directly:

	if authsdk.IsRenewal(err) {
		// session is gone, the user must log in again
	}

# Events

The client and its token store report on the shared authevents.Bus: login,
logout, token-refreshed, token-expired, session-expired,
permissions-changed, user-updated and auth-error.

# Retry

A call replayed after renewal carries SkipRefresh, so a second 401 is
returned to the caller instead of triggering another renewal.
*/
package authsdk
