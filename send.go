package h3mux

import (
	"errors"
	"fmt"
	"time"
)

// sendBatchSize is how many outbound datagrams are requested from the
// transport per PollSend call.
const sendBatchSize = 16

// Send drains the transport's outbound packets onto the socket, destroys
// the connection if the transport reports it can be freed, and otherwise
// re-arms the connection timer.
//
// A non-nil return means the transport failed in an unknown way; the timer
// is not re-armed (one armed earlier stays linked) and the connection must
// not be driven further.
func (c *Conn) Send() error {
	var batch [sendBatchSize]Datagram
	for {
		n, err := c.quic.PollSend(batch[:])
		if errors.Is(err, ErrFreeConnection) {
			c.callbacks.DestroyConnection(c)
			return nil
		}
		if err != nil {
			return fmt.Errorf("transport send: %w", err)
		}

		for i := range batch[:n] {
			d := &batch[i]
			if err := c.ctx.sock.WriteDatagram(d.Buffer.Data, d.Addr); err != nil {
				// a failed sendmsg drops one datagram, not the connection
				c.ctx.logger.Error("sendmsg failed", "remote", d.Addr, "error", err)
				if c.ctx.tracer != nil && c.ctx.tracer.SendError != nil {
					c.ctx.tracer.SendError(d.Addr, err)
				}
			} else if c.ctx.tracer != nil && c.ctx.tracer.SentDatagram != nil {
				c.ctx.tracer.SentDatagram(d.Addr, len(d.Buffer.Data))
			}
			d.Buffer.Release()
			d.Buffer = nil
		}

		if n < sendBatchSize {
			break
		}
	}

	c.scheduleTimer()
	return nil
}

// scheduleTimer arms the connection timer to the transport's next deadline.
// Re-arming with an unchanged deadline is a no-op, so hot paths can call
// this unconditionally.
func (c *Conn) scheduleTimer() {
	deadline := c.quic.NextTimeout()
	if c.timer.IsLinked() {
		if deadline.Equal(c.timer.ExpireAt()) {
			return
		}
		c.ctx.loop.UnlinkTimer(c.timer)
		c.timer.unlink()
	}

	var delay time.Duration
	if now := c.ctx.loop.Now(); deadline.After(now) {
		delay = deadline.Sub(now)
	}
	c.timer.link(deadline)
	c.ctx.loop.LinkTimer(c.timer, delay)
}
