package infra

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Linux input subsystem constants (linux/input-event-codes.h).
const (
	evKey        = 0x01
	keyValueDown = 1
)

// keyNames maps key codes to the names used in configuration.
var keyNames = map[uint16]string{
	1:   "esc",
	28:  "enter",
	113: "mute",
	114: "volumedown",
	115: "volumeup",
	116: "power",
	139: "menu",
	158: "back",
	172: "homepage",
}

// KeyCodeName returns the configuration name of an evdev key code.
func KeyCodeName(code uint16) string {
	if name, ok := keyNames[code]; ok {
		return name
	}
	return "key_" + strconv.Itoa(int(code))
}

// inputEventSize is sizeof(struct input_event): a timeval plus type, code and value.
var inputEventSize = 2*strconv.IntSize/8 + 8

// DecodeKeyEvents reads input_event records from r and calls fn for every
// key-down. It returns nil at EOF.
func DecodeKeyEvents(r io.Reader, fn func(key string, at time.Time)) error {
	buf := make([]byte, inputEventSize)
	word := strconv.IntSize / 8
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		var sec, usec int64
		if word == 8 {
			sec = int64(binary.NativeEndian.Uint64(buf[0:8]))
			usec = int64(binary.NativeEndian.Uint64(buf[8:16]))
		} else {
			sec = int64(int32(binary.NativeEndian.Uint32(buf[0:4])))
			usec = int64(int32(binary.NativeEndian.Uint32(buf[4:8])))
		}
		off := 2 * word
		typ := binary.NativeEndian.Uint16(buf[off : off+2])
		code := binary.NativeEndian.Uint16(buf[off+2 : off+4])
		value := int32(binary.NativeEndian.Uint32(buf[off+4 : off+8]))

		if typ != evKey || value != keyValueDown {
			continue
		}
		fn(KeyCodeName(code), time.Unix(sec, usec*int64(time.Microsecond)))
	}
}

// EvdevKeyReader streams key-downs from a Linux input device.
type EvdevKeyReader struct {
	device string
	logger *zap.Logger
}

// NewEvdevKeyReader creates a reader for a /dev/input/event* device.
func NewEvdevKeyReader(device string, logger *zap.Logger) *EvdevKeyReader {
	return &EvdevKeyReader{device: device, logger: logger}
}

// Run delivers key-downs to fn until ctx is cancelled or the device fails.
// A device that reaches EOF while ctx is live (e.g. it was unplugged) is an error.
func (r *EvdevKeyReader) Run(ctx context.Context, fn func(key string, at time.Time)) error {
	f, err := os.Open(r.device)
	if err != nil {
		return fmt.Errorf("failed to open input device: %w", err)
	}
	defer f.Close()

	// Closing the file unblocks the pending read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-done:
		}
	}()

	r.logger.Info("reading physical keys", zap.String("device", r.device))
	err = DecodeKeyEvents(f, fn)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return fmt.Errorf("input device closed: %w", err)
}
