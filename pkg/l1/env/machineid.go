package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const deviceIDSize = 16

// DeviceID derives the identification reported in CHECK responses from the
// machine ID. It falls back to the host name.
func DeviceID() string {
	id, err := machineid.ProtectedID("heaviside")
	if err == nil && len(id) >= deviceIDSize {
		return id[:deviceIDSize]
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
