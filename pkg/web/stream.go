package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/telephony"
)

// the provider connects server to server, so origin checks don't apply
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream is the media websocket the telephony provider connects back to.
// The URL was minted by StartCall; the token authenticates the connection.
func (h *Handler) Stream(c *gin.Context) {
	streamID := c.Param("short_id")
	prepared, ok := h.engine.Lookup(streamID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown stream"})
		return
	}
	token := c.Query("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(prepared.Token)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("media stream upgrade failed",
			zap.String("stream_id", streamID),
			zap.Error(err))
		return
	}

	session, err := h.engine.Attach(streamID, telephony.NewMediaConn(conn))
	if err != nil {
		// lost a race with the pending sweep or a duplicate connection
		logger.Warn("media stream rejected",
			zap.String("stream_id", streamID),
			zap.Error(err))
		conn.Close()
		return
	}

	logger.Info("media stream connected",
		zap.String("stream_id", streamID),
		zap.String("call_control_id", session.Profile.CallControlID))

	// hold the handler open for the life of the call; the session owns the
	// connection from here
	<-session.Done()
}
