package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goose "github.com/tag1consulting/goose-go"
	"github.com/tag1consulting/goose-go/metrics"
)

// HTTPServer mounts /health, /metrics (Prometheus text exposition), and
// /report.html (a live-rendered Report Generator snapshot) behind a gin
// router, the third Controller surface of spec §4.7.
//
// Grounded on internal/api/server.go's NewServer: gin.New() plus explicit
// route registration rather than gin.Default()'s bundled middleware, since
// this surface has no auth/CORS requirements of its own.
type HTTPServer struct {
	router *gin.Engine
	attack Attack
	prom   *metrics.PrometheusMirror
}

// NewHTTPServer builds the router with the health/metrics/report routes on
// one gin.Engine; it mounts no WebSocket endpoint (NewHTTPServerWithWebSocket
// does). prom may be nil when --no-metrics is set, in which case /metrics
// answers 404 rather than panicking.
func NewHTTPServer(attack Attack, prom *metrics.PrometheusMirror) *HTTPServer {
	return newHTTPServer(attack, prom, nil)
}

// NewHTTPServerWithWebSocket additionally mounts ws at /ws, the framed-JSON
// Controller surface of spec §4.7.
func NewHTTPServerWithWebSocket(attack Attack, prom *metrics.PrometheusMirror, ws *WebSocketServer) *HTTPServer {
	return newHTTPServer(attack, prom, ws)
}

func newHTTPServer(attack Attack, prom *metrics.PrometheusMirror, ws *WebSocketServer) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{router: router, attack: attack, prom: prom}
	router.GET("/health", s.health)
	router.GET("/report.html", s.reportHTML)
	if prom != nil {
		handler := promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{})
		router.GET("/metrics", gin.WrapH(handler))
	}
	if ws != nil {
		router.GET("/ws", gin.WrapH(ws))
	}
	return s
}

// Router exposes the gin.Engine so a caller can wrap it in an http.Server
// with its own timeouts, matching the teacher's GetRouter testing seam.
func (s *HTTPServer) Router() *gin.Engine { return s.router }

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *HTTPServer) reportHTML(c *gin.Context) {
	r := send(s.attack, goose.ControllerCommand{Kind: goose.CmdGetMetrics})
	if r.Err != nil {
		c.String(http.StatusServiceUnavailable, r.Err.Error())
		return
	}

	rep, err := reportFromReply(r)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	html, err := rep.HTML()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
