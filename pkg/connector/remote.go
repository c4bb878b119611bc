package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/internal/metrics"
)

// RemoteConfig tunes the HTTP client's retry-with-exponential-backoff
// behavior. Retries apply only to network-level failures (connection
// refused, timeout); an application-level reject response is never
// retried.
type RemoteConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// DefaultRemoteConfig mirrors the connector admin API's default blockchain
// client tuning.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// RemoteClient implements Client over the connector admin/packet HTTP API
// described in the external interfaces (POST/DELETE /peers, POST /channels,
// GET /channels/{id}, POST /packets).
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
	cfg        RemoteConfig
	handler    PacketHandler
}

// NewRemoteClient builds an HTTP-backed connector client.
func NewRemoteClient(baseURL string, cfg RemoteConfig) *RemoteClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRemoteConfig().RequestTimeout
	}
	return &RemoteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
	}
}

func (c *RemoteClient) doWithRetry(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("connector: marshal request: %w", err)
		}
	}

	delay := c.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("connector: build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("connector: request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func decodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("connector: admin API returned %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterPeer implements Client via POST /peers.
func (c *RemoteClient) RegisterPeer(ctx context.Context, peerKey, transportEndpoint, routingAddress string, routes []Route, priority int, channelID string) error {
	body := map[string]interface{}{
		"peerKey":            peerKey,
		"transportEndpoint":  transportEndpoint,
		"routingAddress":     routingAddress,
		"routes":             routes,
		"priority":           priority,
		"channelId":          channelID,
	}
	resp, err := c.doWithRetry(ctx, http.MethodPost, "/peers", body)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	metrics.PeersRegistered.Inc()
	return nil
}

// RemovePeer implements Client via DELETE /peers/{peerKey}.
func (c *RemoteClient) RemovePeer(ctx context.Context, peerKey string) error {
	resp, err := c.doWithRetry(ctx, http.MethodDelete, "/peers/"+peerKey, nil)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	metrics.PeersRegistered.Dec()
	return nil
}

type sendPacketResponse struct {
	Outcome      string `json:"outcome"`
	Data         string `json:"data,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// SendPacket implements Client via POST /packets. A network-level failure
// is retried with backoff; a decoded reject response is returned as-is
// without retrying.
func (c *RemoteClient) SendPacket(ctx context.Context, destinationRoutingAddress string, amount uint64, dataBytes []byte, timeoutMs int) (PacketResult, error) {
	start := time.Now()
	body := map[string]interface{}{
		"destination": destinationRoutingAddress,
		"amount":      amount,
		"data":        base64.StdEncoding.EncodeToString(dataBytes),
		"timeoutMs":   timeoutMs,
	}
	resp, err := c.doWithRetry(ctx, http.MethodPost, "/packets", body)
	if err != nil {
		metrics.PacketsSent.WithLabelValues("timeout").Inc()
		logger.GetDefaultLogger().Warn("connector packet send failed", logger.String("destination", destinationRoutingAddress), logger.Error(err))
		return PacketResult{}, err
	}
	var out sendPacketResponse
	if err := decodeJSON(resp, &out); err != nil {
		return PacketResult{}, err
	}

	metrics.PacketLatency.Observe(time.Since(start).Seconds())
	metrics.PacketsSent.WithLabelValues(out.Outcome).Inc()

	result := PacketResult{Outcome: Outcome(out.Outcome), ErrorCode: out.ErrorCode, ErrorMessage: out.ErrorMessage}
	if out.Data != "" {
		data, err := base64.StdEncoding.DecodeString(out.Data)
		if err != nil {
			return PacketResult{}, fmt.Errorf("connector: decode response data: %w", err)
		}
		result.Data = data
	}
	return result, nil
}

type openChannelResponse struct {
	ChannelID string `json:"channelId"`
	State     string `json:"state"`
}

// OpenChannel implements Client via POST /channels.
func (c *RemoteClient) OpenChannel(ctx context.Context, peerKey, chain, token string, initialDeposit uint64, timeoutSeconds int) (ChannelInfo, error) {
	body := map[string]interface{}{
		"peerKey":         peerKey,
		"chain":           chain,
		"token":           token,
		"initialDeposit":  initialDeposit,
		"timeoutSeconds":  timeoutSeconds,
	}
	resp, err := c.doWithRetry(ctx, http.MethodPost, "/channels", body)
	if err != nil {
		return ChannelInfo{}, err
	}
	var out openChannelResponse
	if err := decodeJSON(resp, &out); err != nil {
		return ChannelInfo{}, err
	}
	metrics.ChannelsOpen.Inc()
	return ChannelInfo{ChannelID: out.ChannelID, State: ChannelState(out.State)}, nil
}

type channelStateResponse struct {
	State   string `json:"state"`
	Deposit uint64 `json:"deposit"`
	Balance uint64 `json:"balance"`
}

// ChannelState implements Client via GET /channels/{channelID}.
func (c *RemoteClient) ChannelState(ctx context.Context, channelID string) (ChannelInfo, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, "/channels/"+channelID, nil)
	if err != nil {
		return ChannelInfo{}, err
	}
	var out channelStateResponse
	if err := decodeJSON(resp, &out); err != nil {
		return ChannelInfo{}, err
	}
	return ChannelInfo{ChannelID: channelID, State: ChannelState(out.State), Deposit: out.Deposit, Balance: out.Balance}, nil
}

// RegisterPacketHandler implements Client. For the remote implementation
// the handler is invoked by HandlePacketHTTP, which the process's own HTTP
// server mounts at POST /handle-packet.
func (c *RemoteClient) RegisterPacketHandler(fn PacketHandler) {
	c.handler = fn
}

type handlePacketRequest struct {
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
	Data        string `json:"data"`
}

type handlePacketResponse struct {
	Accept   bool                   `json:"accept"`
	Code     string                 `json:"code,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HandlePacketHTTP is the POST /handle-packet endpoint the external
// connector calls for each inbound packet when running in remote mode. It
// decodes the request, invokes the registered PacketHandler, and encodes
// the accept/reject decision.
func (c *RemoteClient) HandlePacketHTTP(w http.ResponseWriter, r *http.Request) {
	var req handlePacketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHandlePacketResponse(w, http.StatusBadRequest, handlePacketResponse{Accept: false, Code: "F00", Message: "malformed request body"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeHandlePacketResponse(w, http.StatusBadRequest, handlePacketResponse{Accept: false, Code: "F00", Message: "malformed packet data"})
		return
	}

	if c.handler == nil {
		writeHandlePacketResponse(w, http.StatusServiceUnavailable, handlePacketResponse{Accept: false, Code: "T00", Message: "no packet handler registered"})
		return
	}

	result := c.handler(r.Context(), req.Destination, req.Amount, data)

	resp := handlePacketResponse{Accept: result.Outcome == Fulfill}
	if result.Outcome == Fulfill {
		resp.Metadata = map[string]interface{}{"data": base64.StdEncoding.EncodeToString(result.Data)}
	} else {
		resp.Code = result.ErrorCode
		resp.Message = result.ErrorMessage
	}
	writeHandlePacketResponse(w, http.StatusOK, resp)
}

func writeHandlePacketResponse(w http.ResponseWriter, status int, resp handlePacketResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
