package notify

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"

	"adlytics/internal/eventbus"
	logx "adlytics/pkg/logx"
)

// Dispatcher routes messages to the Sender registered for their channel.
// The registry is fixed at construction.
type Dispatcher struct {
	senders map[string]Sender
	log     logx.Logger
	bus     eventbus.Publisher
}

// NewDispatcher copies senders; later changes to the map are not observed.
// Channel names are matched exactly. bus may be nil.
func NewDispatcher(senders map[string]Sender, log logx.Logger, bus eventbus.Publisher) *Dispatcher {
	reg := make(map[string]Sender, len(senders))
	for name, s := range senders {
		if s == nil {
			continue
		}
		reg[name] = s
	}
	return &Dispatcher{
		senders: reg,
		log:     log.With(logx.String("comp", "dispatcher")),
		bus:     bus,
	}
}

// Channels lists the registered channel names in sorted order.
func (d *Dispatcher) Channels() []string {
	return slices.Sorted(maps.Keys(d.senders))
}

// Send hands m to its channel's sender and returns the sender's verdict.
// An unknown channel is logged and reported as false.
func (d *Dispatcher) Send(ctx context.Context, m Message) (ok bool) {
	ch := m.Channel
	s, found := d.senders[ch]
	if !found {
		d.log.Warn("no sender for channel", logx.String("channel", m.Channel))
		d.publish(eventbus.NotifyUnrouted, m)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("sender panic",
				logx.String("channel", ch),
				logx.String("panic", fmt.Sprint(r)),
				logx.String("stack", string(debug.Stack())),
			)
			ok = false
		}
		if ok {
			d.publish(eventbus.NotifySent, m)
		} else {
			d.publish(eventbus.NotifyFailed, m)
		}
	}()
	return s.Deliver(ctx, m)
}

func (d *Dispatcher) publish(typ string, m Message) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.NotifyEvent{Channel: m.Channel, Type: m.Type, To: m.To}})
}
