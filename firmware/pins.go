//go:build stm32f4

package main

import (
	"machine"
	"time"
)

const (
	// Evaluation schedule; the host may request extra evaluations at any time
	EVALUATION_INTERVAL = 5 * time.Second

	// Status LED, lit while the battery is LOW
	PIN_LED = machine.LED

	// Serial configuration
	// Report line: "unix_micros,cal,vref_raw,bat_raw,status,fault\n"
	// Example: "1234567890123456,1655,1520,2607,O,\n" = ~40 bytes per evaluation,
	// far below what 115200 baud carries even at the fastest poll rate.
	UART_BAUD_RATE = 115200
)
