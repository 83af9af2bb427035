// Package eventbus provides a client for the kiwibus request/reply and
// publish/subscribe event bus.
//
// A Client owns one logical connection. Requests are sent with Send (callback)
// or Request (blocking), and every request is settled exactly once: with the
// server's reply, or with a locally synthesized reply when the bus is not open
// (503), the reply never arrives (408), or the reply is malformed (400). Replies
// carrying code 419 cause the access token to be refreshed and the request to
// be resent transparently.
//
// In mock mode no transport is used at all. Responses are produced by functions
// registered with AddMockResponse, and listeners registered with actions receive
// synthesized CREATED/UPDATED/DELETED events for the requests they match.
package eventbus
