// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Frame size bounds accepted for MAX_FRAME_SIZE. 20 bytes is the payload
// of a BLE notification at the default MTU, 512 the largest attribute.
const (
	MinFrameSize = 20
	MaxFrameSize = 512
)

// Config holds all application configuration values.
type Config struct {
	DeviceName string

	// Pipeline
	SampleSource     string // mpu9250, serial or sim
	Transport        string // ble, websocket or mqtt
	SampleIntervalMS int
	SampleTimeoutMS  int
	FilterBeta       float64
	ResetOnReconnect bool
	FrameVariant     string // fused or raw
	MaxFrameSize     int

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Serial sample source
	SerialPort     string
	SerialBaudRate uint

	// BLE
	BLEDeviceID    int
	BLEServiceUUID string
	BLERXUUID      string
	BLETXUUID      string

	// Websocket
	WSListenAddr string
	WSPath       string

	// MQTT
	MQTTBroker        string
	MQTTClientID      string
	MQTTTopicFrames   string
	MQTTTopicCommands string

	// Status API, empty disables it
	StatusListenAddr string

	LogLevel string
}

// Default returns a configuration that streams simulated samples over
// websocket. Every key in a config file overrides one of these.
func Default() *Config {
	return &Config{
		DeviceName:       "IMU-Streamer",
		SampleSource:     "sim",
		Transport:        "websocket",
		SampleIntervalMS: 10,
		SampleTimeoutMS:  8,
		FilterBeta:       0.1,
		FrameVariant:     "fused",
		MaxFrameSize:     244,

		IMUSPIDevice:  "/dev/spidev6.0",
		IMUCSPin:      "18",
		IMUAccelRange: 0,
		IMUGyroRange:  0,

		SerialPort:     "/dev/ttyACM0",
		SerialBaudRate: 115200,

		BLEDeviceID:    -1,
		BLEServiceUUID: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E",
		BLERXUUID:      "6E400002-B5A3-F393-E0A9-E50E24DCCA9E",
		BLETXUUID:      "6E400003-B5A3-F393-E0A9-E50E24DCCA9E",

		WSListenAddr: ":8081",
		WSPath:       "/stream",

		MQTTBroker:        "tcp://localhost:1883",
		MQTTClientID:      "orientation-streamer",
		MQTTTopicFrames:   "orientation/frames",
		MQTTTopicCommands: "orientation/commands",

		StatusListenAddr: ":8080",
		LogLevel:         "info",
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, errors.Wrapf(err, "config line %d", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "DEVICE_NAME":
		c.DeviceName = value

	// Pipeline
	case "SAMPLE_SOURCE":
		c.SampleSource = strings.ToLower(value)
	case "TRANSPORT":
		c.Transport = strings.ToLower(value)
	case "SAMPLE_INTERVAL_MS":
		c.SampleIntervalMS, err = atoi(key, value)
	case "SAMPLE_TIMEOUT_MS":
		c.SampleTimeoutMS, err = atoi(key, value)
	case "FILTER_BETA":
		c.FilterBeta, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid FILTER_BETA %q", value)
		}
	case "RESET_ON_RECONNECT":
		c.ResetOnReconnect, err = strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "invalid RESET_ON_RECONNECT %q", value)
		}
	case "FRAME_VARIANT":
		c.FrameVariant = strings.ToLower(value)
	case "MAX_FRAME_SIZE":
		c.MaxFrameSize, err = atoi(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = rangeCode(key, value, "0=±2g, 1=±4g, 2=±8g, 3=±16g")
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = rangeCode(key, value, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s")

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		baud, perr := strconv.ParseUint(value, 10, 32)
		if perr != nil {
			return errors.Wrapf(perr, "invalid SERIAL_BAUD_RATE %q", value)
		}
		c.SerialBaudRate = uint(baud)

	// BLE
	case "BLE_DEVICE_ID":
		c.BLEDeviceID, err = atoi(key, value)
	case "BLE_SERVICE_UUID":
		c.BLEServiceUUID = value
	case "BLE_RX_UUID":
		c.BLERXUUID = value
	case "BLE_TX_UUID":
		c.BLETXUUID = value

	// Websocket
	case "WS_LISTEN_ADDR":
		c.WSListenAddr = value
	case "WS_PATH":
		c.WSPath = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_FRAMES":
		c.MQTTTopicFrames = value
	case "MQTT_TOPIC_COMMANDS":
		c.MQTTTopicCommands = value

	case "STATUS_LISTEN_ADDR":
		c.StatusListenAddr = value
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return errors.Errorf("unknown config key: %q", key)
	}
	return err
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return n, nil
}

func rangeCode(key, value, legend string) (byte, error) {
	n, err := atoi(key, value)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 3 {
		return 0, errors.Errorf("%s must be 0-3 (%s), got %d", key, legend, n)
	}
	return byte(n), nil
}

// Validate checks values that Load cannot check key by key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("DEVICE_NAME is required")
	}
	switch c.SampleSource {
	case "mpu9250":
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return errors.New("IMU_SPI_DEVICE and IMU_CS_PIN are required for SAMPLE_SOURCE=mpu9250")
		}
	case "serial":
		if c.SerialPort == "" || c.SerialBaudRate == 0 {
			return errors.New("SERIAL_PORT and SERIAL_BAUD_RATE are required for SAMPLE_SOURCE=serial")
		}
	case "sim":
	default:
		return errors.Errorf("SAMPLE_SOURCE must be mpu9250, serial or sim, got %q", c.SampleSource)
	}
	switch c.Transport {
	case "ble":
	case "websocket":
		if c.WSListenAddr == "" || !strings.HasPrefix(c.WSPath, "/") {
			return errors.New("WS_LISTEN_ADDR and an absolute WS_PATH are required for TRANSPORT=websocket")
		}
	case "mqtt":
		if c.MQTTBroker == "" || c.MQTTTopicFrames == "" {
			return errors.New("MQTT_BROKER and MQTT_TOPIC_FRAMES are required for TRANSPORT=mqtt")
		}
	default:
		return errors.Errorf("TRANSPORT must be ble, websocket or mqtt, got %q", c.Transport)
	}
	if c.SampleIntervalMS <= 0 {
		return errors.Errorf("SAMPLE_INTERVAL_MS must be positive, got %d", c.SampleIntervalMS)
	}
	if c.SampleTimeoutMS <= 0 || c.SampleTimeoutMS > c.SampleIntervalMS {
		return errors.Errorf("SAMPLE_TIMEOUT_MS must be within 1-%d, got %d", c.SampleIntervalMS, c.SampleTimeoutMS)
	}
	if c.FilterBeta < 0 {
		return errors.Errorf("FILTER_BETA must not be negative, got %v", c.FilterBeta)
	}
	if c.FrameVariant != "fused" && c.FrameVariant != "raw" {
		return errors.Errorf("FRAME_VARIANT must be fused or raw, got %q", c.FrameVariant)
	}
	if c.MaxFrameSize < MinFrameSize || c.MaxFrameSize > MaxFrameSize {
		return errors.Errorf("MAX_FRAME_SIZE must be %d-%d, got %d", MinFrameSize, MaxFrameSize, c.MaxFrameSize)
	}
	return nil
}
