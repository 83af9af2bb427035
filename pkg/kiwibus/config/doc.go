// Package config builds kiwibus clients from HCL files.
//
// A config file has at most one token block, holding the access token shared
// by every client and optionally a schedule for refreshing it, any number of
// client blocks, and mock blocks giving canned replies by "address:action":
//
//	token {
//	  value            = env.KIWIBUS_TOKEN
//	  base_url         = "https://portal.example.com/"
//	  refresh_schedule = "@every 5m"
//	}
//
//	client "main" {
//	  url          = "wss://portal.example.com/kiwibus"
//	  send_timeout = "PT10S"
//	}
//
//	mock "deviceservice:getDevice" {
//	  jq = "{guid: .params}"
//	}
//
// Durations are numbers of seconds, ISO 8601 durations, or Go durations. The
// evaluation context provides env (environment variables) and code (reply
// codes such as code.not_found).
package config
