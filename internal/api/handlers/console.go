// This file implements the interactive console relay: a transparent duplex
// WebSocket bridge between a browser session and the agent-side process
// stream of one game server.
//
// Browser WebSocket clients cannot set request headers, so the session
// authenticates in-band: the first client frame must carry the user
// credential, verified against the identity provider before the agent-side
// connection is ever dialed. Once both ends are open the relay copies
// frames verbatim in both directions and never inspects them; closing or
// failing either side promptly tears down the other.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/metrics"
)

// consoleAuthTimeout bounds how long a client may take to send the
// first-frame credential before the session is dropped.
const consoleAuthTimeout = 10 * time.Second

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// consoleAuthFrame is the required first client frame.
type consoleAuthFrame struct {
	Token string `json:"token"`
}

// consoleServerFrame is a control frame emitted by the relay itself, as
// opposed to raw agent console frames which pass through untouched.
type consoleServerFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Line    string `json:"line,omitempty"`
}

// HandleConsole upgrades the connection, authenticates the first-frame
// credential, dials the agent-side console, and bridges the two sockets
// until either side closes.
//
// GET /api/v1/servers/:id/console
func HandleConsole(mgr *lifecycle.Manager, verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID := c.Param("id")

		clientConn, err := consoleUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warn("Console: Upgrade failed for server %s: %v",
				logging.FormatServerID(serverID), err)
			return
		}
		defer clientConn.Close()

		// First frame: credential, under a hard deadline. Every failure
		// path here ends the session before the agent is ever dialed.
		clientConn.SetReadDeadline(time.Now().Add(consoleAuthTimeout))
		_, payload, err := clientConn.ReadMessage()
		if err != nil {
			consoleReject(clientConn, "authentication timeout")
			return
		}

		var frame consoleAuthFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Token == "" {
			consoleReject(clientConn, "malformed authentication message")
			return
		}

		identity, err := verifier.Verify(frame.Token)
		if err != nil {
			consoleReject(clientConn, "invalid credentials")
			return
		}

		agentConn, err := mgr.DialConsole(identity.UserID, serverID)
		if err != nil {
			logging.Warn("Console: Server %s bridge refused: %v",
				logging.FormatServerID(serverID), err)
			consoleReject(clientConn, "console unavailable: "+lifecycle.Reason(err))
			return
		}
		defer agentConn.Close()

		clientConn.SetReadDeadline(time.Time{})
		consoleNotify(clientConn, "console session established")

		metrics.ConsoleSessions.Inc()
		logging.Info("Console: Session opened for server %s (user %s)",
			logging.FormatServerID(serverID), logging.FormatUserID(identity.UserID))

		bridgeConsole(clientConn, agentConn)

		logging.Info("Console: Session closed for server %s",
			logging.FormatServerID(serverID))
	}
}

// bridgeConsole runs the two copy loops and tears both sockets down as
// soon as either direction fails.
func bridgeConsole(clientConn, agentConn *websocket.Conn) {
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go pumpConsole(agentConn, clientConn, &wg, errCh)
	go pumpConsole(clientConn, agentConn, &wg, errCh)

	<-errCh

	agent.WriteClose(agentConn, websocket.CloseNormalClosure, "")
	agent.WriteClose(clientConn, websocket.CloseNormalClosure, "")
	agentConn.Close()
	clientConn.Close()
	wg.Wait()
}

// pumpConsole relays frames from src to dst verbatim until either side
// errors. No buffering or inspection happens in this path.
func pumpConsole(src, dst *websocket.Conn, wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()
	for {
		msgType, payload, err := src.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		if err := dst.WriteMessage(msgType, payload); err != nil {
			errCh <- err
			return
		}
	}
}

// consoleReject emits an error frame and closes the client connection.
func consoleReject(conn *websocket.Conn, message string) {
	conn.WriteJSON(consoleServerFrame{Type: "error", Message: message})
	agent.WriteClose(conn, websocket.ClosePolicyViolation, message)
}

// consoleNotify emits an informational log frame to the client.
func consoleNotify(conn *websocket.Conn, line string) {
	conn.WriteJSON(consoleServerFrame{Type: "log", Line: line})
}
