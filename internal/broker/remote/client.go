// Package remote is the REAL-mode broker Control. The OCX terminal only runs
// inside a Windows COM host, so a small agent process owns it; this client
// drives the agent over HTTP and receives its callbacks over a websocket.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"autotrader/internal/broker"
	"autotrader/internal/model"
)

const (
	HeartbeatInterval = 10 * time.Second
	defaultTimeout    = 10 * time.Second
)

// Config holds agent connection settings.
type Config struct {
	BaseURL    string // e.g. http://127.0.0.1:8765
	UserID     string
	Password   string
	TOTPSecret string // empty disables the one-time code
	Timeout    time.Duration
}

// Client implements broker.Control against the agent.
type Client struct {
	cfg    Config
	http   *resty.Client
	dialer *websocket.Dialer
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	inputs    []broker.Input
	handler   func(broker.TrDataEvent)
	cache     map[string]recordData // keyed by TR code
	names     map[string]string

	wmu  sync.Mutex // serializes websocket writes
	conn *websocket.Conn
	stop chan struct{}
}

type recordData struct {
	Single map[string]string   `json:"single"`
	Rows   []map[string]string `json:"rows"`
}

// event is one websocket frame from the agent.
type event struct {
	Type string `json:"type"` // tr_data, disconnected
	broker.TrDataEvent
	recordData
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

type trRequest struct {
	RqName   string         `json:"rq_name"`
	TrCode   string         `json:"tr_code"`
	PrevNext int            `json:"prev_next"`
	ScreenNo string         `json:"screen_no"`
	Inputs   []broker.Input `json:"inputs"`
}

type agentResponse struct {
	OK      bool   `json:"ok"`
	Code    int    `json:"code"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// New creates a client. Nothing is dialled until Connect.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		now:    time.Now,
		cache:  make(map[string]recordData),
		names:  make(map[string]string),
	}
}

// Connect logs in through the agent and opens the event stream.
func (c *Client) Connect(ctx context.Context) error {
	req := loginRequest{UserID: c.cfg.UserID, Password: c.cfg.Password}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return fmt.Errorf("generate otp: %w", err)
		}
		req.OTP = code
	}
	if _, err := c.post(ctx, "/login", req); err != nil {
		return fmt.Errorf("agent login: %w", err)
	}

	wsURL, err := eventsURL(c.cfg.BaseURL)
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			log.Printf("[remote] event dial failed, status: %s", resp.Status)
		}
		return fmt.Errorf("agent events: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeatLoop(conn, stop)
	log.Printf("[remote] connected to agent %s", c.cfg.BaseURL)
	return nil
}

func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("agent url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) OnReceiveTrData(handler func(broker.TrDataEvent)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// SetInputValue buffers inputs until the next CommRqData, keeping call order.
func (c *Client) SetInputValue(id, value string) {
	c.mu.Lock()
	c.inputs = append(c.inputs, broker.Input{ID: id, Value: value})
	c.mu.Unlock()
}

func (c *Client) CommRqData(rqName, trCode string, prevNext int, screenNo string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return broker.ErrNotConnected
	}
	inputs := c.inputs
	c.inputs = nil
	delete(c.cache, trCode)
	c.mu.Unlock()

	_, err := c.post(context.Background(), "/tr", trRequest{
		RqName: rqName, TrCode: trCode, PrevNext: prevNext, ScreenNo: screenNo, Inputs: inputs,
	})
	return err
}

func (c *Client) GetRepeatCount(trCode, rqName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache[trCode].Rows)
}

func (c *Client) GetCommData(trCode, rqName string, index int, field string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.cache[trCode]
	if v, ok := d.Single[field]; ok && index == 0 {
		return v
	}
	if index >= 0 && index < len(d.Rows) {
		return d.Rows[index][field]
	}
	return ""
}

func (c *Client) SendOrder(req model.OrderRequest) (int, error) {
	if !c.Connected() {
		return -1, broker.ErrNotConnected
	}
	resp, err := c.post(context.Background(), "/order", req)
	if err != nil && resp == nil {
		return -1, err
	}
	return resp.Code, nil
}

// MasterCodeName asks the agent once per code and caches the answer.
func (c *Client) MasterCodeName(code string) string {
	c.mu.Lock()
	if name, ok := c.names[code]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	var out agentResponse
	resp, err := c.http.R().SetResult(&out).SetPathParam("code", code).Get("/master/{code}")
	if err != nil || resp.IsError() {
		log.Printf("[remote] master name %s failed: %v", code, err)
		return ""
	}
	c.mu.Lock()
	c.names[code] = out.Name
	c.mu.Unlock()
	return out.Name
}

// post sends body and decodes the agent reply. A reply with ok=false is
// returned alongside an error so callers can read its code.
func (c *Client) post(ctx context.Context, path string, body any) (*agentResponse, error) {
	var out agentResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).SetError(&out).Post(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("agent %s: status %d: %s", path, resp.StatusCode(), out.Message)
	}
	if !out.OK {
		return &out, fmt.Errorf("agent %s: %s", path, out.Message)
	}
	return &out, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.markDisconnected(conn)
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("[remote] read error: %v", err)
			}
			return
		}
		switch ev.Type {
		case "tr_data":
			c.mu.Lock()
			c.cache[ev.TrCode] = ev.recordData
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h(ev.TrDataEvent)
			}
		case "disconnected":
			log.Printf("[remote] agent reported broker disconnect")
			return
		default:
			log.Printf("[remote] unknown event type %q", ev.Type)
		}
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.wmu.Unlock()
			if err != nil {
				log.Printf("[remote] heartbeat failed: %v", err)
				return
			}
		}
	}
}

func (c *Client) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.connected = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Close ends the event stream.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.wmu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return conn.Close()
}

var _ broker.Control = (*Client)(nil)
