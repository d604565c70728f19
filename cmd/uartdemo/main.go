// Command uartdemo exercises a self-loopback software UART instance and
// prints the round trip, the same smoke-test role pty_linux.go's OpenPTY
// played for the teacher package, now driven from a CLI instead of tests.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/daedaluz/softuart"
	"github.com/daedaluz/softuart/hal/sim"
)

func main() {
	var (
		formatCode = flag.StringP("format", "f", "8N1", "frame format code, one of the 24 <data><parity><stop> combinations")
		baud       = flag.UintP("baud", "b", 9600, "simulated baud rate")
		message    = flag.StringP("message", "m", "Hello, softuart!", "message to send through the loopback")
		verbose    = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}

	format, err := softuart.ParseFormat(*formatCode)
	if err != nil {
		logger.Fatal("invalid format", "code", *formatCode, "err", err)
	}

	const clockHz = 16_000_000
	bitCycles := uint32(clockHz / (*baud))

	driver := sim.NewLoopback()
	dev := softuart.New(softuart.WithLogger(logger))
	if err := dev.Begin(driver, bitCycles, format); err != nil {
		logger.Fatal("begin", "err", err)
	}
	defer dev.End()

	logger.Info("transmitting", "format", format.String(), "baud", *baud, "bytes", len(*message))
	for i := 0; i < len(*message); i++ {
		if err := dev.WriteByte((*message)[i]); err != nil {
			logger.Fatal("write", "err", err)
		}
	}
	if err := dev.FlushOutput(); err != nil {
		logger.Fatal("flush", "err", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	received := make([]byte, 0, len(*message))
	for len(received) < len(*message) && time.Now().Before(deadline) {
		if b, ok := dev.Read(); ok {
			received = append(received, b)
			continue
		}
		time.Sleep(time.Millisecond)
	}

	fmt.Printf("sent:     %q\n", *message)
	fmt.Printf("received: %q\n", string(received))
	if string(received) != *message {
		fmt.Println("mismatch!")
		os.Exit(1)
	}
	if dev.TimingError() {
		fmt.Println("timing error flagged")
	}
}
