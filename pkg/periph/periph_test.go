package periph

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/client"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm/commtest"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/server"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
)

func TestParseItemDef(t *testing.T) {
	tests := []struct {
		in  string
		def ItemDef
		err bool
	}{
		{in: "3:01020304", def: ItemDef{ID: 3, Data: []byte{1, 2, 3, 4}, Perm: server.PermRead | server.PermWrite}},
		{in: "0x10:ff:r", def: ItemDef{ID: 0x10, Data: []byte{0xff}, Perm: server.PermRead}},
		{in: "7:00:rn", def: ItemDef{ID: 7, Data: []byte{0}, Perm: server.PermRead | server.PermNotify}},
		{in: "3", err: true},
		{in: "300:00", err: true},
		{in: "3:zz", err: true},
		{in: "3:00:x", err: true},
	}
	for _, test := range tests {
		def, err := ParseItemDef(test.in)
		if test.err {
			require.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		require.Equal(t, test.def, def, test.in)
	}
}

func TestItemList(t *testing.T) {
	var l ItemList
	require.NoError(t, l.Set("1:aa:r"))
	require.NoError(t, l.Set("2:bbcc"))
	require.Error(t, l.Set("bad"))
	require.Equal(t, "1:aa:read,2:bbcc:read|write", l.String())
}

func newTestServer(t *testing.T) (*server.Server, *commtest.Link) {
	a, _ := commtest.Pair()
	f := comm.New(comm.DefaultConfig(), a)
	a.Recv = f
	srv := server.New(server.DefaultConfig(), pdu.New(pdu.Role{
		Family: pdu.FamilyCharacteristic,
		Side:   pdu.SideResponder,
	}, f))
	return srv, a
}

func TestNewPeripheral(t *testing.T) {
	srv, _ := newTestServer(t)
	conf := NewConfig()
	conf.Items = ItemList{
		{ID: 1, Data: []byte{1}, Perm: server.PermRead},
		{ID: 2, Data: []byte{2, 2}, Perm: server.PermWrite},
	}
	p, err := conf.NewPeripheral(srv)
	require.NoError(t, err)
	require.Equal(t, 2, srv.Table.Len())
	item, ok := srv.Table.Lookup(2)
	require.True(t, ok)
	require.Equal(t, server.PermWrite, item.Perm)

	p.HandleServerEvent(server.EventRead, 1)
	p.HandleServerEvent(server.EventRead, 1)
	require.Equal(t, 2, p.Events[server.EventRead])
}

func TestPeripheralTableFull(t *testing.T) {
	srv, _ := newTestServer(t)
	conf := NewConfig()
	for i := 0; i <= server.CharacteristicCapacity; i++ {
		conf.Items = append(conf.Items, ItemDef{ID: byte(i), Data: []byte{0}, Perm: server.PermRead})
	}
	_, err := conf.NewPeripheral(srv)
	require.True(t, errors.Is(err, server.ErrTableFull))
}

func TestPeripheralRestartsAfterError(t *testing.T) {
	srv, link := newTestServer(t)
	p := NewPeripheral(srv)
	require.NoError(t, srv.Start())

	link.Recv.OnTransportError(errors.New("line broken"))
	p.Execute()
	require.Equal(t, comm.StateError, srv.State())
	p.Execute()
	require.Equal(t, comm.StateOperating, srv.State())
}

func TestPeripheralRetryInterval(t *testing.T) {
	srv, link := newTestServer(t)
	p := NewPeripheral(srv)
	mock := clock.NewMock()
	p.Clock = mock
	p.RetryInterval = time.Second
	require.NoError(t, srv.Start())

	link.Recv.OnTransportError(errors.New("line broken"))
	p.Execute()
	require.Equal(t, comm.StateError, srv.State())
	link.StartErr = errors.New("port gone")
	p.Execute()
	require.Equal(t, comm.StateReady, srv.State())

	link.StartErr = nil
	p.Execute()
	require.Equal(t, comm.StateReady, srv.State())
	mock.Add(time.Second)
	p.Execute()
	require.Equal(t, comm.StateOperating, srv.State())
}

func TestPeripheralLinkRecovery(t *testing.T) {
	conf := env.NewConfig()
	conf.DeviceID = "dev-1"
	local, remote := net.Pipe()
	e, err := conf.NewEnv(&env.Conn{ReadWriter: local, Name: "periph"}, pdu.SideResponder)
	require.NoError(t, err)
	srv := server.New(conf.ServerConfig(), e.Protocol)
	p := NewPeripheral(srv)
	mock := clock.NewMock()
	p.Clock = mock
	p.RetryInterval = time.Minute
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := fx.NewLoop().Add(e, p)
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	status := func() (state comm.State, restarting bool) {
		require.NoError(t, loop.Do(ctx, func() {
			state, restarting = srv.State(), p.restarting
		}))
		return
	}

	remote.Close()
	require.Eventually(t, func() bool {
		state, restarting := status()
		return state == comm.StateReady && restarting
	}, 2*time.Second, 5*time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("loop stopped: %v", err)
	default:
	}

	next, hostConn := net.Pipe()
	require.NoError(t, loop.Do(ctx, func() {
		e.Link.Reopen = func() (io.ReadWriter, error) { return next, nil }
	}))
	mock.Add(time.Minute)
	require.Eventually(t, func() bool {
		state, _ := status()
		return state == comm.StateOperating
	}, 2*time.Second, 5*time.Millisecond)

	host, err := conf.NewEnv(&env.Conn{ReadWriter: hostConn, Name: "host"}, pdu.SideRequester)
	require.NoError(t, err)
	c := client.New(conf.ClientConfig(), host.Protocol)
	checked := make(chan string, 1)
	c.Callbacks.CheckResult = func(channel byte, data []byte) {
		checked <- string(data)
	}
	require.NoError(t, c.Start())
	hostLoop := fx.NewLoop().Add(host).AddExecutor(c)
	go hostLoop.Run(ctx)
	require.NoError(t, hostLoop.Do(ctx, func() {
		require.NoError(t, c.EnqueueCheck())
	}))
	select {
	case id := <-checked:
		require.Equal(t, "dev-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no check response over the reopened link")
	}
}
