package mqtt

import "fmt"

// Subscribe registers handler for a topic filter, which may use + and #.
//
// The filter is remembered and re-subscribed after every reconnect, since
// the bridge uses clean sessions. Subscribing to the same filter again
// replaces its handler. On failure nothing is remembered.
//
//	err := client.Subscribe(mqtt.Topics{}.AllCommands("10.0.0.5"), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.handleCommand(topic, payload)
//	    })
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := checkFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	prev, hadPrev := c.subscriptions[filter]
	c.subscriptions[filter] = subscription{topic: filter, qos: qos, handler: handler}
	c.subMu.Unlock()

	err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		c.subMu.Lock()
		if hadPrev {
			c.subscriptions[filter] = prev
		} else {
			delete(c.subscriptions, filter)
		}
		c.subMu.Unlock()
	}
	return err
}

// Unsubscribe stops delivery for filter and forgets it for reconnects.
// Messages already in flight may still reach the old handler.
func (c *Client) Unsubscribe(filter string) error {
	if err := checkFilter(filter); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()

	return await(c.client.Unsubscribe(filter), defaultPublishTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of remembered filters.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether filter is remembered, compared literally.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	_, ok := c.subscriptions[filter]
	c.subMu.RUnlock()
	return ok
}
