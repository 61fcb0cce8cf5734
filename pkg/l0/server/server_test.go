package server

import (
	"fmt"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm/commtest"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
)

type response struct {
	msg  pdu.Message
	data []byte
}

type serverTestEnv struct {
	t      *testing.T
	clock  *clock.Mock
	server *Server
	peer   *pdu.Protocol
	resps  []response
	events []string
}

func newServerTestEnv(t *testing.T, family pdu.Family, addressed bool) *serverTestEnv {
	env := &serverTestEnv{t: t, clock: clock.NewMock()}
	a, b := commtest.Pair()

	sf := comm.New(comm.DefaultConfig(), a)
	a.Recv = sf
	conf := DefaultConfig()
	conf.Clock = env.clock
	conf.DeviceID = []byte("periph")
	env.server = New(conf, pdu.New(pdu.Role{
		Family:    family,
		Side:      pdu.SideResponder,
		Addressed: addressed,
		Home:      2,
	}, sf))
	env.server.Handler = HandleServerEventFunc(func(ev Event, id byte) {
		env.events = append(env.events, fmt.Sprintf("%s %d", ev, id))
	})

	pf := comm.New(comm.DefaultConfig(), b)
	b.Recv = pf
	env.peer = pdu.New(pdu.Role{
		Family:    family,
		Side:      pdu.SideRequester,
		Addressed: addressed,
		Home:      1,
	}, pf)
	env.peer.Setup(pdu.HandlePDUFunc(func(msg *pdu.Message) {
		data := make([]byte, msg.Size)
		env.peer.ParseData(data)
		env.resps = append(env.resps, response{msg: *msg, data: data})
	}))

	require.NoError(t, env.server.Start())
	require.NoError(t, env.peer.Start())
	return env
}

// request sends a request and returns the response, nil if none.
func (e *serverTestEnv) request(op pdu.Op, id byte, data []byte) *response {
	e.resps = nil
	require.NoError(e.t, e.peer.Request(2, op, id, data))
	for i := 0; i < 3; i++ {
		e.peer.Execute()
		e.server.Execute()
	}
	if len(e.resps) == 0 {
		return nil
	}
	require.Len(e.t, e.resps, 1)
	return &e.resps[0]
}

func TestServerReadWrite(t *testing.T) {
	env := newServerTestEnv(t, pdu.FamilyCharacteristic, false)
	buf := make([]byte, 4)
	require.NoError(t, env.server.Register(3, buf, PermRead|PermWrite))

	resp := env.request(pdu.OpWrite, 3, []byte{1, 2, 3, 4})
	require.NotNil(t, resp)
	require.Equal(t, pdu.OpWrite, resp.msg.Op)
	require.Equal(t, pdu.ResultSuccess, resp.msg.Result)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)

	resp = env.request(pdu.OpRead, 3, nil)
	require.NotNil(t, resp)
	require.Equal(t, pdu.ResultSuccess, resp.msg.Result)
	require.Equal(t, []byte{1, 2, 3, 4}, resp.data)
	require.Equal(t, []string{"write 3", "read 3"}, env.events)
}

func TestServerReadUnknown(t *testing.T) {
	env := newServerTestEnv(t, pdu.FamilyCharacteristic, false)
	resp := env.request(pdu.OpRead, 99, nil)
	require.NotNil(t, resp)
	require.Equal(t, pdu.ResultFailure, resp.msg.Result)
	require.Empty(t, resp.data)
	require.Equal(t, 0, env.server.Table.Len())
	require.Empty(t, env.events)
}

func TestServerPermissions(t *testing.T) {
	testCases := []struct {
		name   string
		perm   Permission
		op     pdu.Op
		data   []byte
		result pdu.Result
	}{
		{"read write-only", PermWrite, pdu.OpRead, nil, pdu.ResultFailure},
		{"write read-only", PermRead, pdu.OpWrite, []byte{9, 9}, pdu.ResultFailure},
		{"write notify-only", PermNotify, pdu.OpWrite, []byte{9, 9}, pdu.ResultFailure},
		{"read read-only", PermRead, pdu.OpRead, nil, pdu.ResultSuccess},
		{"write write-only", PermWrite, pdu.OpWrite, []byte{9, 9}, pdu.ResultSuccess},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newServerTestEnv(t, pdu.FamilyCharacteristic, false)
			buf := []byte{5, 5}
			require.NoError(t, env.server.Register(1, buf, tc.perm))
			resp := env.request(tc.op, 1, tc.data)
			require.NotNil(t, resp)
			require.Equal(t, tc.result, resp.msg.Result)
			if tc.result == pdu.ResultFailure {
				require.Equal(t, []byte{5, 5}, buf)
				require.Empty(t, resp.data)
				require.Empty(t, env.events)
			}
		})
	}
}

func TestServerConnection(t *testing.T) {
	env := newServerTestEnv(t, pdu.FamilyCharacteristic, false)

	require.Nil(t, env.request(pdu.OpPoll, 0, nil))

	resp := env.request(pdu.OpCheck, 0, nil)
	require.NotNil(t, resp)
	require.Equal(t, []byte("periph"), resp.data)

	resp = env.request(pdu.OpConnect, 0, nil)
	require.NotNil(t, resp)
	require.Equal(t, pdu.ResultSuccess, resp.msg.Result)
	require.True(t, env.server.Connected())

	require.NotNil(t, env.request(pdu.OpConnect, 0, nil))
	require.Nil(t, env.request(pdu.OpCheck, 0, nil))
	require.NotNil(t, env.request(pdu.OpPoll, 0, nil))

	require.NotNil(t, env.request(pdu.OpDisconnect, 0, nil))
	require.False(t, env.server.Connected())
	require.NotNil(t, env.request(pdu.OpDisconnect, 0, nil))
	require.Equal(t, []string{"connection 0", "disconnection 0"}, env.events)
}

func TestServerDropout(t *testing.T) {
	env := newServerTestEnv(t, pdu.FamilyCharacteristic, false)
	require.NotNil(t, env.request(pdu.OpConnect, 0, nil))

	env.clock.Add(env.server.conf.Dropout)
	env.server.Execute()
	require.True(t, env.server.Connected())

	require.NotNil(t, env.request(pdu.OpPoll, 0, nil))
	env.clock.Add(env.server.conf.Dropout)
	env.server.Execute()
	require.True(t, env.server.Connected())

	env.clock.Add(1)
	env.server.Execute()
	require.False(t, env.server.Connected())
	require.Equal(t, []string{"connection 0", "disconnection 0"}, env.events)
}

func TestServerObjShare(t *testing.T) {
	env := newServerTestEnv(t, pdu.FamilyObjShare, true)
	require.Equal(t, ObjShareCapacity, env.server.Table.Cap())
	require.NoError(t, env.server.Register(7, []byte{1, 2}, PermRead))

	resp := env.request(pdu.OpPoll, 0, nil)
	require.NotNil(t, resp)
	require.Equal(t, byte(2), resp.msg.Src)
	require.Equal(t, byte(1), resp.msg.Dst)

	resp = env.request(pdu.OpRead, 7, nil)
	require.NotNil(t, resp)
	require.Equal(t, []byte{1, 2}, resp.data)

	env.clock.Add(env.server.conf.Dropout * 2)
	env.server.Execute()
	require.Equal(t, []string{"read 7"}, env.events)
}
