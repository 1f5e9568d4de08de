// Package qrz talks to the QRZ.com XML lookup service and logbook API.
package qrz

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/errors"
)

const (
	DefaultLookupURL  = "https://xmldata.qrz.com/xml/current/"
	DefaultLogbookURL = "https://logbook.qrz.com/api"
	Agent             = "qsolog/1.0"

	// StatusOK is the logbook API result for an accepted insert.
	StatusOK = "OK"

	service = "qrz"
)

// Options configures a Client. Empty URLs select the public endpoints.
type Options struct {
	Username   string
	Password   string
	APIKey     string
	LookupURL  string
	LogbookURL string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client is a QRZ session. The session key is obtained lazily and renewed
// once when the service reports it expired.
type Client struct {
	http       *resty.Client
	lookupURL  string
	logbookURL string
	username   string
	password   string
	apiKey     string
	log        *zap.Logger

	mu         sync.Mutex
	sessionKey string
}

// Callsign is the subset of a lookup answer the logbook uses.
type Callsign struct {
	Call      string `xml:"call" json:"call"`
	FirstName string `xml:"fname" json:"fname,omitempty"`
	Name      string `xml:"name" json:"name,omitempty"`
	Addr1     string `xml:"addr1" json:"addr1,omitempty"`
	Addr2     string `xml:"addr2" json:"addr2,omitempty"`
	State     string `xml:"state" json:"state,omitempty"`
	Zip       string `xml:"zip" json:"zip,omitempty"`
	Country   string `xml:"country" json:"country,omitempty"`
	Grid      string `xml:"grid" json:"grid,omitempty"`
	County    string `xml:"county" json:"county,omitempty"`
	CQZone    string `xml:"cqzone" json:"cqzone,omitempty"`
	Email     string `xml:"email" json:"email,omitempty"`
	LoTW      string `xml:"lotw" json:"lotw,omitempty"`
}

// FullName joins first and last name the way the entry form shows it.
func (c *Callsign) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.Name)
}

// Session is the session block QRZ returns with every XML answer.
type Session struct {
	Key     string `xml:"Key"`
	Count   int    `xml:"Count"`
	SubExp  string `xml:"SubExp"`
	GMTime  string `xml:"GMTime"`
	Message string `xml:"Message"`
	Error   string `xml:"Error"`
}

type database struct {
	XMLName  xml.Name  `xml:"QRZDatabase"`
	Callsign *Callsign `xml:"Callsign"`
	Session  Session   `xml:"Session"`
}

// UploadResult is the parsed logbook API answer.
type UploadResult struct {
	Status string `json:"status"`
	Count  int    `json:"count,omitempty"`
	LogID  int64  `json:"log_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// OK reports whether the record was accepted.
func (r *UploadResult) OK() bool {
	return r.Status == StatusOK
}

// New creates a client.
func New(opts Options) *Client {
	if opts.LookupURL == "" {
		opts.LookupURL = DefaultLookupURL
	}
	if opts.LogbookURL == "" {
		opts.LogbookURL = DefaultLogbookURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("User-Agent", Agent)

	return &Client{
		http:       httpClient,
		lookupURL:  opts.LookupURL,
		logbookURL: opts.LogbookURL,
		username:   opts.Username,
		password:   opts.Password,
		apiKey:     opts.APIKey,
		log:        opts.Logger,
	}
}

// LoggedIn reports whether a session key is held.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey != ""
}

// Login obtains a session key with the configured credentials.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return errors.NewInvalidRequest("qrz username and password are required")
	}

	db, err := c.query(ctx, "login", map[string]string{
		"username": c.username,
		"password": c.password,
		"agent":    Agent,
	})
	if err != nil {
		return err
	}
	if db.Session.Key == "" {
		reason := db.Session.Error
		if reason == "" {
			reason = "no session key in response"
		}
		return errors.NewRemoteFailed(service, "login", reason)
	}

	c.mu.Lock()
	c.sessionKey = db.Session.Key
	c.mu.Unlock()
	c.log.Info("qrz session established", zap.String("user", c.username), zap.String("expires", db.Session.SubExp))
	return nil
}

// Lookup returns the QRZ record for call, logging in first if needed.
func (c *Client) Lookup(ctx context.Context, call string) (*Callsign, error) {
	call = strings.ToUpper(strings.TrimSpace(call))
	if call == "" {
		return nil, errors.NewInvalidRequest("callsign is required")
	}

	db, err := c.lookup(ctx, call)
	if err != nil {
		return nil, err
	}
	if db.Callsign == nil && isSessionExpired(db.Session.Error) {
		c.log.Debug("qrz session expired, logging in again")
		c.mu.Lock()
		c.sessionKey = ""
		c.mu.Unlock()
		if db, err = c.lookup(ctx, call); err != nil {
			return nil, err
		}
	}
	if db.Callsign == nil {
		reason := db.Session.Error
		if reason == "" {
			reason = "no callsign in response"
		}
		return nil, errors.NewRemoteFailed(service, "lookup", reason).WithDetail("callsign", call)
	}
	return db.Callsign, nil
}

func (c *Client) lookup(ctx context.Context, call string) (*database, error) {
	if !c.LoggedIn() {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	key := c.sessionKey
	c.mu.Unlock()

	return c.query(ctx, "lookup", map[string]string{"s": key, "callsign": call})
}

func (c *Client) query(ctx context.Context, action string, params map[string]string) (*database, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.lookupURL)
	if err != nil {
		c.log.Warn("qrz request failed", zap.String("action", action), zap.Error(err))
		return nil, errors.NewRemoteFailed(service, action, err.Error())
	}
	if resp.IsError() {
		return nil, errors.NewRemoteFailed(service, action, resp.Status())
	}

	var db database
	if err := xml.Unmarshal(resp.Body(), &db); err != nil {
		return nil, errors.NewRemoteFailed(service, action, fmt.Sprintf("malformed response: %v", err))
	}
	return &db, nil
}

// Upload inserts adifText, one encoded record, into the QRZ logbook. A
// rejected record is not an error: inspect the result's status.
func (c *Client) Upload(ctx context.Context, adifText string) (*UploadResult, error) {
	if c.apiKey == "" {
		return nil, errors.NewInvalidRequest("qrz api key is required")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"KEY":    c.apiKey,
			"ACTION": "INSERT",
			"ADIF":   adifText,
		}).
		Post(c.logbookURL)
	if err != nil {
		c.log.Warn("qrz upload request failed", zap.Error(err))
		return nil, errors.NewUploadFailed(service, err.Error())
	}
	if resp.IsError() {
		return nil, errors.NewUploadFailed(service, resp.Status())
	}

	result := ParseUploadResponse(resp.String())
	if result.Status == "" {
		return nil, errors.NewUploadFailed(service, "response carried no result")
	}
	c.log.Debug("qrz upload answered",
		zap.String("status", result.Status),
		zap.Int64("logid", result.LogID),
		zap.String("reason", result.Reason))
	return result, nil
}

// ParseUploadResponse parses "RESULT=OK&COUNT=1&LOGID=123" style answers.
// Keys are matched case-insensitively and unknown keys are ignored.
func ParseUploadResponse(body string) *UploadResult {
	result := &UploadResult{}
	for _, item := range strings.Split(strings.TrimSpace(body), "&") {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "RESULT":
			result.Status = value
		case "COUNT":
			result.Count, _ = strconv.Atoi(value)
		case "LOGID", "LOGIDS":
			result.LogID, _ = strconv.ParseInt(value, 10, 64)
		case "REASON":
			result.Reason = value
		}
	}
	return result
}

func isSessionExpired(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "session timeout") || strings.Contains(reason, "invalid session key")
}
