package noc

import (
	"fmt"

	"github.com/manycore-odp/c2c/mem/atomics"
)

// An Endpoint is the fabric as seen from one cluster.
type Endpoint struct {
	cluster *cluster
}

// Cluster returns the cluster the endpoint belongs to.
func (e *Endpoint) Cluster() int {
	return e.cluster.id
}

// Fabric returns the fabric the endpoint is attached to.
func (e *Endpoint) Fabric() *Fabric {
	return e.cluster.fabric
}

// ConfigureRx programs a receive resource of the local cluster to land
// incoming messages into buf. Reprogramming drops any pending event.
func (e *Endpoint) ConfigureRx(iface, tag int, buf []byte) error {
	f := e.cluster.fabric

	dma, res, err := f.lookup(e.cluster.id, iface, tag)
	if err != nil {
		return err
	}

	err = f.takeFault(resourceKey{e.cluster.id, iface, tag})
	if err != nil {
		return fmt.Errorf("configure rx %d/%d/%d: %w",
			e.cluster.id, iface, tag, err)
	}

	res.lock.Lock()
	defer res.lock.Unlock()

	res.buf = buf
	res.n = 0

	word, mask := pendingBit(tag)
	f.core.AndNot64(&dma.pending[word], mask, atomics.Release)

	return nil
}

// Send transfers msg followed by payload into receive resource tag of
// cluster dst. A message landing on a resource whose previous message has not
// been polled replaces it.
func (e *Endpoint) Send(iface, dst, tag int, msg, payload []byte) error {
	f := e.cluster.fabric

	dma, res, err := f.lookup(dst, iface, tag)
	if err != nil {
		return err
	}

	n := len(msg) + len(payload)
	d := Delivery{Src: e.cluster.id, Dst: dst, Iface: iface, Tag: tag, Len: n}

	f.hook(HookPosNoCSend, d)

	res.lock.Lock()

	if res.buf == nil {
		res.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrRxNotConfigured, d)
	}

	if n > len(res.buf) {
		res.lock.Unlock()
		return fmt.Errorf("%w: %s, buffer %d", ErrPayloadTooLarge, d, len(res.buf))
	}

	copy(res.buf, msg)
	copy(res.buf[len(msg):], payload)
	res.n = n

	word, mask := pendingBit(tag)
	old := f.core.Or64(&dma.pending[word], mask, atomics.AcqRel)
	cb, arg := res.cb, res.arg

	res.lock.Unlock()

	f.sent.Add(1)
	f.bytes.Add(uint64(n))

	if old&mask != 0 {
		f.overwrites.Add(1)
		f.hook(HookPosNoCOverwrite, d)
	}

	f.hook(HookPosNoCLand, d)

	if cb != nil {
		cb(arg)
	}

	return nil
}

// Poll tests and clears the event of a local receive resource. If a message
// had landed, it is copied into dst and its length is returned.
func (e *Endpoint) Poll(iface, tag int, dst []byte) (int, bool) {
	f := e.cluster.fabric

	dma, res, err := f.lookup(e.cluster.id, iface, tag)
	if err != nil {
		return 0, false
	}

	word, mask := pendingBit(tag)
	if f.core.Load64(&dma.pending[word], atomics.Acquire)&mask == 0 {
		return 0, false
	}

	res.lock.Lock()
	defer res.lock.Unlock()

	old := f.core.AndNot64(&dma.pending[word], mask, atomics.AcqRel)
	if old&mask == 0 {
		return 0, false
	}

	return copy(dst, res.buf[:res.n]), true
}

// Pending reports whether a local receive resource has an unpolled message.
func (e *Endpoint) Pending(iface, tag int) bool {
	f := e.cluster.fabric

	dma, _, err := f.lookup(e.cluster.id, iface, tag)
	if err != nil {
		return false
	}

	word, mask := pendingBit(tag)

	return f.core.Load64(&dma.pending[word], atomics.Acquire)&mask != 0
}

// RegisterEvent makes the fabric call cb with arg, on interrupt line line,
// every time a message lands in a local receive resource.
func (e *Endpoint) RegisterEvent(
	iface, line, tag int,
	cb func(arg any),
	arg any,
) error {
	f := e.cluster.fabric

	_, res, err := f.lookup(e.cluster.id, iface, tag)
	if err != nil {
		return err
	}

	if line < 0 || line >= f.numLines {
		return fmt.Errorf("%w: %d", ErrNoSuchLine, line)
	}

	res.lock.Lock()
	defer res.lock.Unlock()

	if res.buf == nil {
		return fmt.Errorf("%w: %d/%d/%d",
			ErrRxNotConfigured, e.cluster.id, iface, tag)
	}

	res.cb = cb
	res.arg = arg
	res.line = line

	return nil
}
