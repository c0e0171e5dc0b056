package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"artisanlink/internal/apperror"
	"artisanlink/internal/config"
	"artisanlink/internal/metrics"
	"artisanlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 4 << 20

// Operation names used for errors and metrics.
const (
	OpCreateBooking      = "create_booking"
	OpProposePrice       = "propose_price"
	OpApprovePrice       = "approve_price"
	OpGetUserBookings    = "get_user_bookings"
	OpGetArtisanBookings = "get_artisan_bookings"
	OpGetBooking         = "get_booking"
)

// Client calls the booking REST API. Every response is expected in the
// {success, data, message} envelope.
type Client struct {
	baseURL    string
	tokenMu    sync.RWMutex
	token      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds a client from config. A zero RPS disables rate limiting.
func NewClient(cfg config.APIConfig, logger *zerolog.Logger, opts ...Option) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 5
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken swaps the bearer token after sign-in.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) bearer() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

func (c *Client) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (models.Booking, error) {
	return call[models.Booking](ctx, c, OpCreateBooking, http.MethodPost, "/booking/create", req)
}

func (c *Client) ProposePrice(ctx context.Context, bookingID, artisanID string, price models.ProposedPrice) (models.Booking, error) {
	path := fmt.Sprintf("/booking/%s/propose/%s", url.PathEscape(bookingID), url.PathEscape(artisanID))
	return call[models.Booking](ctx, c, OpProposePrice, http.MethodPut, path, models.ProposePriceRequest{ProposedPrice: price})
}

func (c *Client) ApprovePrice(ctx context.Context, bookingID, customerID string, approved bool) (models.Booking, error) {
	path := fmt.Sprintf("/booking/%s/approve/%s", url.PathEscape(bookingID), url.PathEscape(customerID))
	return call[models.Booking](ctx, c, OpApprovePrice, http.MethodPost, path, models.ApprovePriceRequest{Approved: approved})
}

func (c *Client) GetUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	path := "/booking/user/" + url.PathEscape(userID)
	return call[[]models.Booking](ctx, c, OpGetUserBookings, http.MethodGet, path, nil)
}

func (c *Client) GetArtisanBookings(ctx context.Context, artisanID string) ([]models.Booking, error) {
	path := "/booking/artisan/" + url.PathEscape(artisanID)
	return call[[]models.Booking](ctx, c, OpGetArtisanBookings, http.MethodGet, path, nil)
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	path := "/booking/" + url.PathEscape(bookingID)
	return call[models.Booking](ctx, c, OpGetBooking, http.MethodGet, path, nil)
}

func call[T any](ctx context.Context, c *Client, op, method, path string, body any) (T, error) {
	var zero T
	start := time.Now()

	raw, err := c.do(ctx, op, method, path, body)
	if err != nil {
		c.observe(op, err, start)
		return zero, err
	}

	var env models.Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		err = apperror.Decode(op, err)
		c.observe(op, err, start)
		return zero, err
	}
	if !env.Success {
		err = apperror.Transport(op, http.StatusOK, messageOrFallback(env.Message), nil)
		c.observe(op, err, start)
		return zero, err
	}

	c.observe(op, nil, start)
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperror.Canceled(op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperror.Decode(op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperror.Transport(op, 0, "", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, apperror.Canceled(op, err)
		}
		return nil, apperror.Transport(op, 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.Transport(op, resp.StatusCode, "", err)
	}

	if resp.StatusCode >= 300 {
		c.logger.Debug().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("request_id", req.Header.Get("X-Request-ID")).
			Msg("api request rejected")
		return nil, apperror.Transport(op, resp.StatusCode, serverMessage(raw), nil)
	}
	return raw, nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) observe(op string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperror.KindOf(err))
		c.logger.Warn().Err(err).Str("op", op).Msg("api request failed")
	}
	metrics.ObserveAPI(op, outcome, time.Since(start))
}

// serverMessage pulls "message" out of an error body, which may not be a
// full envelope.
func serverMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return apperror.FallbackMessage
	}
	return messageOrFallback(gjson.GetBytes(body, "message").String())
}

func messageOrFallback(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return apperror.FallbackMessage
	}
	return msg
}
