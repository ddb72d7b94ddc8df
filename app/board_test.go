package app

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"firmkit/core"
	"firmkit/drivers/led"
)

func TestLoadBoardDefaults(t *testing.T) {
	b, err := LoadBoard([]byte(`{}`))
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	want := DefaultBoard()
	want.Button = ""
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("Board mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBoardOverrides(t *testing.T) {
	b, err := LoadBoard([]byte(`{
		"name": "nucleo-f401",
		"led": "PA5",
		"button": "PC13",
		"pattern": "sos",
		"console": {"uart": "usart1", "baud": 9600, "tx": "PB6", "rx": "PB7"},
		"i2c": {"bus": "I2C3", "speed": 400000},
		"spi": {"bus": "SPI3", "sck": "PC10", "miso": "PC11", "mosi": "PC12"},
		"heartbeat_ms": 500
	}`))
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}

	if b.Name != "nucleo-f401" || b.HeartbeatMs != 500 || b.LEDActive != "high" {
		t.Errorf("Unexpected board %+v", b)
	}

	inst, _ := b.UARTInstance()
	if inst != core.USART1 {
		t.Errorf("Expected USART1, got %d", inst)
	}
	uc, err := b.UARTConfig()
	if err != nil {
		t.Fatalf("UARTConfig failed: %v", err)
	}
	wantPins := &core.UARTPins{TX: core.Pin{Port: core.PortB, Num: 6}, RX: core.Pin{Port: core.PortB, Num: 7}, AF: 7}
	if uc.BaudRate != 9600 || !cmp.Equal(wantPins, uc.Pins) {
		t.Errorf("Unexpected UART config %+v", uc)
	}

	ic, err := b.I2CConfig()
	if err != nil {
		t.Fatalf("I2CConfig failed: %v", err)
	}
	if ic.Speed != core.I2CFast || ic.Pins != nil {
		t.Errorf("Expected fast mode on default pins, got %+v", ic)
	}

	sc, err := b.SPIConfig()
	if err != nil {
		t.Fatalf("SPIConfig failed: %v", err)
	}
	if sc.Pins == nil || sc.Pins.AF != 6 || sc.Pins.MOSI != (core.Pin{Port: core.PortC, Num: 12}) {
		t.Errorf("Unexpected SPI pins %+v", sc.Pins)
	}
	if b.SPI.CS != "" {
		t.Errorf("Expected no chip select on a configured bus, got %q", b.SPI.CS)
	}
}

func TestLoadBoardErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"syntax", `{"led": }`},
		{"led pin", `{"led": "PD16"}`},
		{"polarity", `{"led_active": "sideways"}`},
		{"pattern", `{"pattern": "disco"}`},
		{"uart", `{"console": {"uart": "USART9"}}`},
		{"uart pins", `{"console": {"tx": "PA2"}}`},
		{"i2c bus", `{"i2c": {"bus": "I2C4"}}`},
		{"i2c speed", `{"i2c": {"speed": 1000000}}`},
		{"spi bus", `{"spi": {"bus": "SPI5"}}`},
		{"spi pins", `{"spi": {"sck": "PA5"}}`},
		{"button", `{"button": "X1"}`},
	}
	for _, tt := range tests {
		if _, err := LoadBoard([]byte(tt.json)); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestBoardPolarity(t *testing.T) {
	b := DefaultBoard()
	b.LEDActive = "LOW"
	p, err := b.Polarity()
	if err != nil || p != led.ActiveLow {
		t.Errorf("Expected active low, got %v, %v", p, err)
	}
}
