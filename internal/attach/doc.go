// Package attach implements the attach operation queue: a fixed pool of
// operation records delivered from arbitrary callers to one servicing
// goroutine, and answered over a caller-supplied channel.
//
// A Listener owns the pool. Enqueue validates the request, takes a free
// record and appends it to the pending list; it never blocks on servicing,
// never logs and never allocates. Dequeue hands the oldest pending record
// to the server, which dispatches it and calls Complete. Complete writes
// "<code>\n" followed by the output to the channel named by the request,
// then returns the record to the pool whatever the outcome.
//
// Channels are named like Windows pipes ("\\.\pipe\<name>"). A
// ChannelOpener maps that name to a concrete transport; UnixOpener uses a
// unix socket per pipe in a directory.
package attach
