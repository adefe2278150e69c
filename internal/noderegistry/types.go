// Package noderegistry tracks connected GPU worker nodes and routes invoke
// requests to them by request id, independent of whatever transport carries
// the frames (the transport itself is out of scope; callers feed connect/
// disconnect/result events into the registry).
package noderegistry

import (
	"math"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// Session is a connected worker node.
type Session struct {
	NodeID        string
	ConnID        string
	DisplayName   string
	Platform      string
	Version       string
	Caps          []string
	Commands      []string
	Permissions   []string
	PathEnv       string
	Resources     planmodel.Resources
	ConnectedAtMS int64
	RemoteIP      string
}

// ConnectFrame is the subset of a protocol-level connect message the
// registry needs to build a Session.
type ConnectFrame struct {
	NodeID      string
	ClientID    string
	DisplayName string
	Platform    string
	Version     string
	Caps        []string
	Commands    []string
	Permissions []string
	PathEnv     string
	Resources   planmodel.Resources
	RemoteIP    string
}

// sessionFromConnect builds a Session from a connect frame, normalising
// resources: non-finite or non-positive GPU memory is dropped, and every
// numeric field is coerced to be non-negative.
func sessionFromConnect(connID string, f ConnectFrame, now time.Time) Session {
	nodeID := f.NodeID
	if nodeID == "" {
		nodeID = f.ClientID
	}
	res := f.Resources
	if math.IsNaN(res.GPUMemGB) || math.IsInf(res.GPUMemGB, 0) || res.GPUMemGB < 0 {
		res.GPUMemGB = 0
	}
	if res.GPUCount < 0 {
		res.GPUCount = 0
	}
	if res.CPUCores < 0 {
		res.CPUCores = 0
	}
	if res.RAMGB < 0 {
		res.RAMGB = 0
	}
	return Session{
		NodeID:        nodeID,
		ConnID:        connID,
		DisplayName:   f.DisplayName,
		Platform:      f.Platform,
		Version:       f.Version,
		Caps:          f.Caps,
		Commands:      f.Commands,
		Permissions:   f.Permissions,
		PathEnv:       f.PathEnv,
		Resources:     res,
		ConnectedAtMS: now.UnixMilli(),
		RemoteIP:      f.RemoteIP,
	}
}
