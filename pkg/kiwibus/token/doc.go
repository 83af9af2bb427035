// Package token holds the access token presented with every event bus
// request, decodes and encodes its claims, and refreshes it from the HTTP
// backend either on demand or on a cron schedule.
package token
