package mqtt

import (
	"context"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Peer is an announced peripheral.
type Peer struct {
	Name     string
	DeviceID string
}

func metaTopic(name string) string {
	return name + "/meta"
}

// SetMetaWill clears the retained meta of name when the connection is lost.
func SetMetaWill(opts *paho.ClientOptions, topicPrefix, name string) {
	opts.SetBinaryWill(topicPrefix+metaTopic(name), nil, 1, true)
}

// Announce publishes the retained peripheral meta on every connect. It must
// be called before Connect.
func Announce(q *Queue, name, deviceID string) {
	q.OnConnect = func(q *Queue) {
		q.PubWith(metaTopic(name), []byte(deviceID), 1, true)
	}
}

// Withdraw clears the retained peripheral meta.
func Withdraw(q *Queue, name string) {
	token := q.PubWith(metaTopic(name), nil, 1, true)
	token.WaitTimeout(time.Second)
}

// Discover collects announced peripherals until timeout.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]Peer, error) {
	resCh := make(chan Peer, 16)
	sub := q.Sub("+/meta", Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		name := strings.TrimSuffix(topic, "/meta")
		select {
		case resCh <- Peer{Name: name, DeviceID: string(payload)}:
		case <-time.After(time.Second):
		}
	}))
	defer sub.Close()

	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	expired := time.After(timeout)
	var peers []Peer
	for {
		select {
		case peer := <-resCh:
			peers = append(peers, peer)
		case <-expired:
			return peers, nil
		case <-ctx.Done():
			return peers, ctx.Err()
		}
	}
}
