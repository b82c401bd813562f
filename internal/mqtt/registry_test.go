package mqtt

import (
	"testing"

	"github.com/AaronLay10/ActionGraph/internal/config"
)

func TestDeviceRegistry_RegisterAndGet(t *testing.T) {
	registry := NewDeviceRegistry("rooms/crypt")

	registry.Register(&Device{
		ID:            "crypt_door",
		Type:          "door",
		OutputSignals: []string{"unlock", "lock"},
	})

	got := registry.Get("crypt_door")
	if got == nil {
		t.Fatal("expected device, got nil")
	}
	if got.CommandTopic != "rooms/crypt/crypt_door/commands" {
		t.Errorf("expected default command topic, got %s", got.CommandTopic)
	}

	got.OutputSignals[0] = "mutated"
	if registry.Get("crypt_door").OutputSignals[0] != "unlock" {
		t.Error("Get must return a copy")
	}

	if registry.Get("nonexistent") != nil {
		t.Error("expected nil for unknown device")
	}
}

func TestDeviceRegistry_CommandTopic(t *testing.T) {
	registry := NewDeviceRegistry("devices")
	registry.Register(&Device{
		ID:           "fog",
		CommandTopic: "ctrl-001/fog/cmd",
	})

	if topic := registry.CommandTopic("fog"); topic != "ctrl-001/fog/cmd" {
		t.Errorf("expected explicit topic, got %s", topic)
	}
	if topic := registry.CommandTopic("lamp"); topic != "devices/lamp/commands" {
		t.Errorf("expected default topic for unregistered device, got %s", topic)
	}
	if topic := NewDeviceRegistry("").CommandTopic("lamp"); topic != "lamp/commands" {
		t.Errorf("expected bare topic without prefix, got %s", topic)
	}
}

func TestDeviceRegistry_ValidateCommand(t *testing.T) {
	registry := NewDeviceRegistry("devices")
	registry.Register(&Device{
		ID:            "crypt_door",
		OutputSignals: []string{"unlock", "lock"},
	})
	registry.Register(&Device{ID: "lamp"})

	if err := registry.ValidateCommand("crypt_door", "unlock"); err != nil {
		t.Errorf("expected valid command, got %v", err)
	}
	if err := registry.ValidateCommand("crypt_door", "explode"); err == nil {
		t.Error("expected error for unsupported signal")
	}
	if err := registry.ValidateCommand("lamp", "anything"); err != nil {
		t.Errorf("device without outputs accepts any signal, got %v", err)
	}
	if err := registry.ValidateCommand("unregistered", "on"); err != nil {
		t.Errorf("unregistered device accepts any signal, got %v", err)
	}
	if err := registry.ValidateCommand("", "on"); err == nil {
		t.Error("expected error for missing device id")
	}
	if err := registry.ValidateCommand("lamp", ""); err == nil {
		t.Error("expected error for missing signal")
	}
}

func TestDeviceRegistry_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.TopicPrefix = "rooms/lighthouse"
	def := config.DeviceDefinition{Type: "light"}
	def.Signals.Outputs = []string{"on", "off"}
	cfg.Devices = map[string]config.DeviceDefinition{"lamp": def, "beacon": {Type: "light"}}

	registry := NewDeviceRegistryFromConfig(cfg)
	ids := registry.IDs()
	if len(ids) != 2 || ids[0] != "beacon" || ids[1] != "lamp" {
		t.Errorf("unexpected ids %v", ids)
	}
	if err := registry.ValidateCommand("lamp", "dim"); err == nil {
		t.Error("expected config outputs to be enforced")
	}
	if topic := registry.CommandTopic("lamp"); topic != "rooms/lighthouse/lamp/commands" {
		t.Errorf("unexpected topic %s", topic)
	}
}
