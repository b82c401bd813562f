package actions

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/mqtt"
)

// Publisher sends device commands. *mqtt.Client satisfies it.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// deviceKind publishes {signal, payload} to the device's command topic.
// A failed command is reported as device.error; the node still finishes so the
// scene flow stays deterministic.
func deviceKind(pub Publisher, devices *mqtt.DeviceRegistry) engine.KindSpec {
	return engine.KindSpec{
		Name:     "device",
		Params:   []string{"device", "signal", "payload"},
		Defaults: []string{"", "", "{}"},
		New: func(env engine.Env) (engine.Handler, error) {
			return engine.HandlerFunc(func(p graph.Payload, finish func()) error {
				cmd := &deviceCommand{env: env, pub: pub, devices: devices}
				_ = cmd.execute(p)
				finish()
				return nil
			}), nil
		},
	}
}

type deviceCommand struct {
	env     engine.Env
	pub     Publisher
	devices *mqtt.DeviceRegistry
}

func (c *deviceCommand) execute(p graph.Payload) error {
	deviceID, signal := p.Param(0), p.Param(1)
	if err := c.devices.ValidateCommand(deviceID, signal); err != nil {
		return c.emitDeviceError(deviceID, signal, "", err.Error())
	}

	var payload interface{}
	if raw := p.Param(2); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return c.emitDeviceError(deviceID, signal, "", fmt.Sprintf("invalid payload: %v", err))
		}
	}

	topic := c.devices.CommandTopic(deviceID)
	body, err := json.Marshal(map[string]interface{}{
		"signal":  signal,
		"payload": payload,
	})
	if err != nil {
		return c.emitDeviceError(deviceID, signal, topic, fmt.Sprintf("failed to marshal payload: %v", err))
	}

	if c.pub == nil || !c.pub.IsConnected() {
		return c.emitDeviceError(deviceID, signal, topic, "MQTT client not connected")
	}
	if err := c.pub.Publish(topic, body); err != nil {
		return c.emitDeviceError(deviceID, signal, topic, fmt.Sprintf("MQTT publish failed: %v", err))
	}

	events.EmitSession(c.env.SessionID, "info", "device.command", "", map[string]interface{}{
		"node_id":   int(c.env.Node),
		"device_id": deviceID,
		"signal":    signal,
		"topic":     topic,
	})
	return nil
}

// emitDeviceError emits a device.error event with full context and returns an error.
func (c *deviceCommand) emitDeviceError(deviceID, signal, topic, msg string) error {
	fields := map[string]interface{}{
		"node_id": int(c.env.Node),
		"error":   msg,
	}
	if deviceID != "" {
		fields["device_id"] = deviceID
	}
	if signal != "" {
		fields["signal"] = signal
	}
	if topic != "" {
		fields["topic"] = topic
	}
	events.EmitSession(c.env.SessionID, "error", "device.error", msg, fields)
	return fmt.Errorf("%s", msg)
}
