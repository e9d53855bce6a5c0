package mqtt

import "fmt"

// Subscribe registers handler for a topic filter, which may contain + and #
// wildcards. Subscribing the same filter again replaces its handler.
//
//	err := client.Subscribe(mqtt.Topics{}.DeviceCommands("fht"), 1, handle)
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validate(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	tok := c.paho.Subscribe(filter, qos, c.wrapHandler(handler))
	if err := await(tok, defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// SubscriptionCount returns the number of filters restored on reconnect.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
