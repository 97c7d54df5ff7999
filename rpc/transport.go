package rpc

// EventCallback is invoked by the transport when a message lands in a
// receive resource that has an event registered.
type EventCallback = func(arg any)

// Transport is the network-on-chip hardware as seen by one cluster.
type Transport interface {
	// ConfigureRx programs receive resource tag of interface iface to land
	// incoming messages into buf.
	ConfigureRx(iface, tag int, buf []byte) error

	// Send transfers msg followed by payload into receive resource tag of
	// cluster dst.
	Send(iface, dst, tag int, msg, payload []byte) error

	// Poll tests and clears the arrival event of a receive resource. When
	// a message had landed, it is copied into dst and its length returned.
	Poll(iface, tag int, dst []byte) (n int, ok bool)

	// RegisterEvent asks the transport to call cb with arg, on the given
	// interrupt line, whenever a message lands in resource tag.
	RegisterEvent(iface, line, tag int, cb EventCallback, arg any) error
}
