package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/auditrunner/internal/runner"
	"github.com/GriffinCanCode/auditrunner/internal/shared/id"
)

// DefaultLogWait is how long a log watcher waits for its run to start.
const DefaultLogWait = 30 * time.Second

const (
	writeWait  = 10 * time.Second
	pingPeriod = 20 * time.Second
)

// LogFrame is one websocket message on /v1/audits/:runId/log.
type LogFrame struct {
	// Type is "line", "end" or "error".
	Type    string `json:"type"`
	Line    string `json:"line,omitempty"`
	Dropped int    `json:"dropped,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// Same policy as the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamLog sends the lines of one run over a websocket as they arrive and
// closes the socket when the run ends.
func (h *Handlers) StreamLog(c *gin.Context) {
	runID := c.Param("runId")
	if !id.IsValid(runID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid runId", Kind: "validation", Detail: runID})
		return
	}

	// Subscribe first so no line is published between the upgrade and the
	// first read.
	sub := h.logs.Subscribe(runID)
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Log stream upgrade failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.Close()

	// The reader only notices the client going away and answers pings.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	wait := time.NewTimer(h.logWait)
	defer wait.Stop()
	select {
	case <-sub.Started():
	case <-wait.C:
		h.closeWith(conn, websocket.CloseTryAgainLater, LogFrame{Type: "error", Error: "run did not start"})
		return
	case <-gone:
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case line, ok := <-sub.Lines():
			if !ok {
				h.closeWith(conn, websocket.CloseNormalClosure, LogFrame{Type: "end", Dropped: sub.Dropped()})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(LogFrame{Type: "line", Line: line}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *Handlers) closeWith(conn *websocket.Conn, code int, last LogFrame) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(last); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, last.Type)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// tee hands every line to each logger in turn.
type tee []runner.Logger

func (t tee) Log(line string) {
	for _, l := range t {
		l.Log(line)
	}
}
