package mqtt

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AaronLay10/ActionGraph/internal/config"
)

// Device is a command target the device leaf kind may publish to.
type Device struct {
	ID            string
	Type          string
	CommandTopic  string
	OutputSignals []string
}

// DeviceRegistry maps device IDs to their command topics and accepted signals.
// Devices that were never registered get the default topic and accept any signal.
type DeviceRegistry struct {
	mu      sync.RWMutex
	prefix  string
	devices map[string]*Device
}

// NewDeviceRegistry creates an empty registry publishing under prefix.
func NewDeviceRegistry(prefix string) *DeviceRegistry {
	return &DeviceRegistry{
		prefix:  prefix,
		devices: make(map[string]*Device),
	}
}

// NewDeviceRegistryFromConfig registers every device declared in the project config.
func NewDeviceRegistryFromConfig(cfg *config.ProjectConfig) *DeviceRegistry {
	r := NewDeviceRegistry(cfg.TopicPrefix())
	for id, def := range cfg.Devices {
		r.Register(&Device{
			ID:            id,
			Type:          def.Type,
			OutputSignals: append([]string{}, def.Signals.Outputs...),
		})
	}
	return r
}

// Register adds or updates a device. An empty CommandTopic gets the default.
func (r *DeviceRegistry) Register(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *dev
	if cpy.CommandTopic == "" {
		cpy.CommandTopic = r.defaultTopic(dev.ID)
	}
	r.devices[dev.ID] = &cpy
}

// Get returns a copy of a registered device, or nil.
func (r *DeviceRegistry) Get(id string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.devices[id]; ok {
		cpy := *dev
		cpy.OutputSignals = append([]string{}, dev.OutputSignals...)
		return &cpy
	}
	return nil
}

// CommandTopic returns the topic commands for id are published to.
func (r *DeviceRegistry) CommandTopic(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.devices[id]; ok {
		return dev.CommandTopic
	}
	return r.defaultTopic(id)
}

func (r *DeviceRegistry) defaultTopic(id string) string {
	if r.prefix == "" {
		return id + "/commands"
	}
	return r.prefix + "/" + id + "/commands"
}

// ValidateCommand checks signal against a registered device's outputs.
// A registered device with no declared outputs accepts any signal.
func (r *DeviceRegistry) ValidateCommand(id, signal string) error {
	if id == "" {
		return fmt.Errorf("missing device id")
	}
	if signal == "" {
		return fmt.Errorf("missing signal for device %s", id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok || len(dev.OutputSignals) == 0 {
		return nil
	}
	for _, s := range dev.OutputSignals {
		if s == signal {
			return nil
		}
	}
	return fmt.Errorf("device %s does not support output signal: %s", id, signal)
}

// IDs returns the registered device IDs in sorted order.
func (r *DeviceRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
