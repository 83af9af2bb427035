// Package devices queries and mutates devices through the device service of
// a kiwibus event bus.
//
// A Set describes a query. Its result is a Result holding Devices, which can
// be kept up to date with server-pushed events when the set is live:
//
//	result, err := devices.NewSet(client).
//		Filter(map[string]any{"deviceClass": "boiler"}).
//		Paginate(0, 20).
//		Live().
//		Query(ctx)
//
// Devices remember the tag values they were loaded with. Update sends only the
// tags that changed since then.
package devices
