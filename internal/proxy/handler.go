package proxy

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/metrics"
)

// errAllUpstreamsDown is returned when no live upstream candidate remains.
var errAllUpstreamsDown = errors.New("all upstream servers are down")

// connectToUpstream selects a live upstream at random and dials it. A dial
// failure marks that candidate dead and triggers re-selection. Each failure
// strictly shrinks the live set, so the loop terminates with either a
// connection or errAllUpstreamsDown.
func (p *Proxy) connectToUpstream(logger Logger) (net.Conn, string, error) {
	for {
		addr, ok := p.registry.SelectRandomLive()
		if !ok {
			return nil, "", errAllUpstreamsDown
		}
		conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
		if err != nil {
			logger.Error("Failed to connect to upstream",
				zap.String("upstream", addr),
				zap.Error(err))
			p.registry.SetAlive(addr, false)
			metrics.UpstreamAlive.WithLabelValues(addr).Set(0)
			continue
		}
		return conn, addr, nil
	}
}

// handleConnection serves one client connection: it binds a single upstream
// connection for the client's lifetime, then loops reading client requests,
// applying the rate limit, forwarding, and relaying responses. Per-request
// defects answer with an error response and keep the connection open;
// upstream I/O failures after binding terminate the connection.
func (p *Proxy) handleConnection(clientConn net.Conn) {
	defer clientConn.Close()

	clientIP := hostOnly(clientConn.RemoteAddr())
	logger := p.logger
	connID := uuid.NewString()

	logger.Info("Connection received",
		zap.String("conn_id", connID),
		zap.String("client_ip", clientIP))

	p.limiter.Register(clientIP)

	upstreamConn, upstreamAddr, err := p.connectToUpstream(logger)
	if err != nil {
		logger.Error("No live upstream available",
			zap.String("conn_id", connID),
			zap.String("client_ip", clientIP))
		p.sendError(clientConn, http.StatusBadGateway, connID)
		return
	}
	defer upstreamConn.Close()

	clientReader := bufio.NewReader(clientConn)
	upstreamReader := bufio.NewReader(upstreamConn)

	for {
		req, err := readRequest(clientReader, p.maxBodyBytes)
		if errors.Is(err, io.EOF) {
			logger.Debug("Client finished sending requests, closing connection",
				zap.String("conn_id", connID))
			return
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			if reqErr.Kind == KindConnection {
				logger.Info("Error reading request from client",
					zap.String("conn_id", connID),
					zap.Error(reqErr))
				return
			}
			logger.Debug("Rejected malformed request",
				zap.String("conn_id", connID),
				zap.Error(reqErr))
			p.sendError(clientConn, reqErr.Status(), connID)
			continue
		}
		if err != nil {
			logger.Error("Unexpected request read failure",
				zap.String("conn_id", connID),
				zap.Error(err))
			return
		}

		start := time.Now()
		logger.Info("Forwarding request",
			zap.String("conn_id", connID),
			zap.String("client_ip", clientIP),
			zap.String("upstream", upstreamAddr),
			zap.String("request", requestLine(req)))

		if !p.limiter.Admit(clientIP) {
			metrics.RateLimitedTotal.Inc()
			logger.Debug("Rate limit exceeded",
				zap.String("conn_id", connID),
				zap.String("client_ip", clientIP))
			p.sendError(clientConn, http.StatusTooManyRequests, connID)
			continue
		}

		appendForwardedFor(req, clientIP)

		if err := req.Write(upstreamConn); err != nil {
			logger.Error("Failed to forward request to upstream",
				zap.String("conn_id", connID),
				zap.String("upstream", upstreamAddr),
				zap.Error(err))
			p.sendError(clientConn, http.StatusBadGateway, connID)
			return
		}

		resp, err := http.ReadResponse(upstreamReader, req)
		if err != nil {
			logger.Error("Failed to read response from upstream",
				zap.String("conn_id", connID),
				zap.String("upstream", upstreamAddr),
				zap.Error(err))
			p.sendError(clientConn, http.StatusBadGateway, connID)
			return
		}

		status := resp.StatusCode
		err = p.relayResponse(clientConn, resp)
		metrics.RequestsTotal.WithLabelValues(upstreamAddr, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(upstreamAddr).Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Warn("Failed to relay response to client",
				zap.String("conn_id", connID),
				zap.Error(err))
			return
		}
		logger.Debug("Relayed response to client",
			zap.String("conn_id", connID),
			zap.Int("status", status))
	}
}

// relayResponse writes the upstream response verbatim to the client and
// releases its body.
func (p *Proxy) relayResponse(clientConn net.Conn, resp *http.Response) error {
	defer resp.Body.Close()
	return resp.Write(clientConn)
}

// sendError writes a synthetic error response to the client. Send failures
// are logged only; the caller decides whether the connection survives.
func (p *Proxy) sendError(clientConn net.Conn, status int, connID string) {
	metrics.ErrorResponsesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	resp := newErrorResponse(status)
	if err := resp.Write(clientConn); err != nil {
		p.logger.Warn("Failed to send error response to client",
			zap.String("conn_id", connID),
			zap.Int("status", status),
			zap.Error(err))
	}
}

// hostOnly strips the port from a network address, falling back to the full
// string when it has no port.
func hostOnly(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
