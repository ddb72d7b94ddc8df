package app

import (
	"encoding/json"
	"strings"

	"firmkit/core"
	"firmkit/drivers/led"
)

// Board describes how the application is wired to a particular PCB. Pins
// are written as board names ("PD12"), peripherals by instance name
// ("USART2", "I2C1", "SPI1").
type Board struct {
	Name string `json:"name"`

	LED       string `json:"led"`
	LEDActive string `json:"led_active"` // "high" or "low"
	Pattern   string `json:"pattern"`    // initial LED pattern
	Button    string `json:"button"`     // optional, cycles the LED pattern

	Console     ConsoleConfig `json:"console"`
	I2C         BusConfig     `json:"i2c"`
	SPI         BusConfig     `json:"spi"`
	HeartbeatMs uint32        `json:"heartbeat_ms"`
}

// ConsoleConfig places the debug console.
type ConsoleConfig struct {
	UART string `json:"uart"`
	Baud uint32 `json:"baud"`
	TX   string `json:"tx,omitempty"`
	RX   string `json:"rx,omitempty"`
}

// BusConfig places an I2C or SPI bus. Empty pins keep the instance
// default routing. Speed is the bus clock in Hz.
type BusConfig struct {
	Bus     string `json:"bus"`
	Speed   uint32 `json:"speed"`
	SCL     string `json:"scl,omitempty"`
	SDA     string `json:"sda,omitempty"`
	SCK     string `json:"sck,omitempty"`
	MISO    string `json:"miso,omitempty"`
	MOSI    string `json:"mosi,omitempty"`
	CS      string `json:"cs,omitempty"`
	Disable bool   `json:"disable,omitempty"`
}

// LoadBoard parses a JSON board description and fills in defaults.
func LoadBoard(jsonData []byte) (*Board, error) {
	var board Board

	err := json.Unmarshal(jsonData, &board)
	if err != nil {
		return nil, err
	}

	applyDefaults(&board)

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// applyDefaults fills in missing values from the STM32F4-Discovery layout
func applyDefaults(board *Board) {
	def := DefaultBoard()

	if board.Name == "" {
		board.Name = def.Name
	}
	if board.LED == "" {
		board.LED = def.LED
	}
	if board.LEDActive == "" {
		board.LEDActive = def.LEDActive
	}
	if board.Pattern == "" {
		board.Pattern = def.Pattern
	}
	if board.HeartbeatMs == 0 {
		board.HeartbeatMs = def.HeartbeatMs
	}

	if board.Console.UART == "" {
		board.Console.UART = def.Console.UART
	}
	if board.Console.Baud == 0 {
		board.Console.Baud = core.DebugBaudRate
	}

	if board.I2C.Bus == "" {
		board.I2C.Bus = def.I2C.Bus
		if board.I2C.SCL == "" && board.I2C.SDA == "" {
			board.I2C.SCL, board.I2C.SDA = def.I2C.SCL, def.I2C.SDA
		}
	}
	if board.I2C.Speed == 0 {
		board.I2C.Speed = 100000
	}

	if board.SPI.Bus == "" {
		board.SPI.Bus = def.SPI.Bus
		if board.SPI.CS == "" {
			board.SPI.CS = def.SPI.CS
		}
	}
	if board.SPI.Speed == 0 {
		board.SPI.Speed = 1000000
	}
}

// DefaultBoard returns the STM32F4-Discovery layout: green LED on PD12,
// user button on PA0, console on USART2 (PA2/PA3), I2C1 on PB6/PB9 and
// the on-board accelerometer on SPI1 with chip select on PE3.
func DefaultBoard() *Board {
	return &Board{
		Name:      "stm32f4-discovery",
		LED:       "PD12",
		LEDActive: "high",
		Pattern:   "heartbeat",
		Button:    "PA0",
		Console: ConsoleConfig{
			UART: "USART2",
			Baud: core.DebugBaudRate,
		},
		I2C: BusConfig{
			Bus:   "I2C1",
			Speed: 100000,
			SCL:   "PB6",
			SDA:   "PB9",
		},
		SPI: BusConfig{
			Bus:   "SPI1",
			Speed: 1000000,
			CS:    "PE3",
		},
		HeartbeatMs: 1000,
	}
}

// Validate checks that every name in the board resolves.
func (b *Board) Validate() error {
	if _, err := core.ParsePin(b.LED); err != nil {
		return err
	}
	if _, err := b.Polarity(); err != nil {
		return err
	}
	if _, ok := led.ParsePattern(b.Pattern); !ok {
		return core.ErrInvalidArg
	}
	if _, err := b.UARTInstance(); err != nil {
		return err
	}
	if _, err := b.UARTConfig(); err != nil {
		return err
	}
	if _, err := b.I2CConfig(); err != nil {
		return err
	}
	if _, err := b.SPIConfig(); err != nil {
		return err
	}
	for _, pin := range []string{b.Button, b.SPI.CS} {
		if pin == "" {
			continue
		}
		if _, err := core.ParsePin(pin); err != nil {
			return err
		}
	}
	return nil
}

// Polarity returns the LED drive polarity.
func (b *Board) Polarity() (led.Polarity, error) {
	switch strings.ToLower(b.LEDActive) {
	case "", "high":
		return led.ActiveHigh, nil
	case "low":
		return led.ActiveLow, nil
	}
	return 0, core.ErrInvalidArg
}

// UARTInstance resolves the console UART name.
func (b *Board) UARTInstance() (core.UARTInstance, error) {
	switch strings.ToUpper(b.Console.UART) {
	case "USART1":
		return core.USART1, nil
	case "USART2":
		return core.USART2, nil
	case "USART3":
		return core.USART3, nil
	case "USART6":
		return core.USART6, nil
	}
	return 0, core.ErrInvalidArg
}

// UARTConfig returns the console line settings, 8N1 at the board baud.
func (b *Board) UARTConfig() (core.UARTConfig, error) {
	cfg := core.DefaultUARTConfig()
	cfg.BaudRate = b.Console.Baud
	if b.Console.TX == "" && b.Console.RX == "" {
		return cfg, nil
	}
	tx, err := core.ParsePin(b.Console.TX)
	if err != nil {
		return cfg, err
	}
	rx, err := core.ParsePin(b.Console.RX)
	if err != nil {
		return cfg, err
	}
	inst, err := b.UARTInstance()
	if err != nil {
		return cfg, err
	}
	af := uint8(7)
	if inst == core.USART6 {
		af = 8
	}
	cfg.Pins = &core.UARTPins{TX: tx, RX: rx, AF: af}
	return cfg, nil
}

// I2CInstance resolves the I2C bus name.
func (b *Board) I2CInstance() (core.I2CInstance, error) {
	switch strings.ToUpper(b.I2C.Bus) {
	case "I2C1":
		return core.I2C1, nil
	case "I2C2":
		return core.I2C2, nil
	case "I2C3":
		return core.I2C3, nil
	}
	return 0, core.ErrInvalidArg
}

// I2CConfig returns the bus settings. Speeds above 100 kHz select fast
// mode.
func (b *Board) I2CConfig() (core.I2CConfig, error) {
	cfg := core.DefaultI2CConfig()
	if _, err := b.I2CInstance(); err != nil {
		return cfg, err
	}
	switch {
	case b.I2C.Speed > 400000:
		return cfg, core.ErrInvalidArg
	case b.I2C.Speed > 100000:
		cfg.Speed = core.I2CFast
	}
	if b.I2C.SCL == "" && b.I2C.SDA == "" {
		return cfg, nil
	}
	scl, err := core.ParsePin(b.I2C.SCL)
	if err != nil {
		return cfg, err
	}
	sda, err := core.ParsePin(b.I2C.SDA)
	if err != nil {
		return cfg, err
	}
	cfg.Pins = &core.I2CPins{SCL: scl, SDA: sda, AF: 4}
	return cfg, nil
}

// SPIInstance resolves the SPI bus name.
func (b *Board) SPIInstance() (core.SPIInstance, error) {
	switch strings.ToUpper(b.SPI.Bus) {
	case "SPI1":
		return core.SPI1, nil
	case "SPI2":
		return core.SPI2, nil
	case "SPI3":
		return core.SPI3, nil
	}
	return 0, core.ErrInvalidArg
}

// SPIConfig returns mode 0 master settings at the board clock.
func (b *Board) SPIConfig() (core.SPIConfig, error) {
	cfg := core.DefaultSPIConfig()
	inst, err := b.SPIInstance()
	if err != nil {
		return cfg, err
	}
	cfg.ClockHz = b.SPI.Speed
	if b.SPI.SCK == "" && b.SPI.MISO == "" && b.SPI.MOSI == "" {
		return cfg, nil
	}
	var pins core.SPIPins
	for _, p := range []struct {
		name string
		dst  *core.Pin
	}{{b.SPI.SCK, &pins.SCK}, {b.SPI.MISO, &pins.MISO}, {b.SPI.MOSI, &pins.MOSI}} {
		if *p.dst, err = core.ParsePin(p.name); err != nil {
			return cfg, err
		}
	}
	pins.AF = 5
	if inst == core.SPI3 {
		pins.AF = 6
	}
	cfg.Pins = &pins
	return cfg, nil
}
