// Package debug provides the optional info-providing mechanisms for the
// server: a pprof listener and frame dumping for packet logging.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, pprofPort int) {
	startPprofServer(logger, pprofPort)
}

// startPprofServer starts the default pprof HTTP server that can be
// accessed via localhost to get runtime information about the server.
// See https://golang.org/pkg/net/http/pprof/
func startPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Warnf("error starting pprof server: %s", err)
		}
	}()
}

type frameDump struct {
	Opcode byte
	Length int
	Bytes  []byte
}

// LogFrame writes a readable dump of one frame payload at debug level.
// direction is "recv" or "send".
func LogFrame(logger *logrus.Logger, direction, peer string, payload []byte) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	dump := frameDump{Length: len(payload)}
	if len(payload) > 0 {
		dump.Opcode = payload[0]
		dump.Bytes = payload[1:]
	}
	logger.Debugf("%s %s %s", direction, peer, spew.Sdump(dump))
}
