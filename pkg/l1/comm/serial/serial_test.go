package serial

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseURL(t *testing.T) {
	testCases := []struct {
		url   string
		path  string
		mode  serial.Mode
		rs485 bool
	}{
		{
			url:  "serial:///dev/ttyUSB0",
			path: "/dev/ttyUSB0",
			mode: serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			url:   "serial:///dev/ttyS1?baud=9600&parity=even&stopbits=2&rs485=true",
			path:  "/dev/ttyS1",
			mode:  serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
			rs485: true,
		},
		{
			url:  "serial://COM3?databits=7&parity=o",
			path: "COM3",
			mode: serial.Mode{BaudRate: 115200, DataBits: 7, Parity: serial.OddParity, StopBits: serial.OneStopBit},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)
			opts, err := ParseURL(u)
			require.NoError(t, err)
			require.Equal(t, tc.path, opts.Path)
			require.Equal(t, tc.mode, opts.Mode)
			require.Equal(t, tc.rs485, opts.RS485)
		})
	}
}

func TestParseURLErrors(t *testing.T) {
	for _, str := range []string{
		"serial://",
		"serial:///dev/tty?baud=fast",
		"serial:///dev/tty?parity=mark",
		"serial:///dev/tty?stopbits=3",
		"serial:///dev/tty?rs485=maybe",
	} {
		u, err := url.Parse(str)
		require.NoError(t, err)
		_, err = ParseURL(u)
		require.Error(t, err, str)
	}
}
