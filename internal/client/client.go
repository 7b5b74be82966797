// Package client is the HTTP client for the notes API.
//
// Every operation owns a slot. Starting a request bumps the slot's
// generation; a response that arrives after a newer request in the same
// slot has started is discarded and reported as apperr.ErrSuperseded. No
// request is cancelled and nothing is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/document"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	maxResponseBytes = 64 << 20

	// SessionHeader carries the per-client session id.
	SessionHeader = "X-Client-Session"
)

// Slot identifies an operation whose requests supersede one another.
type Slot int

const (
	SlotList Slot = iota
	SlotAdd
	SlotDelete
	SlotFlush
	SlotInsertImage
	SlotDeleteFragment
	SlotImages
	SlotUpload
	SlotSearch
	slotCount
)

var slotNames = [slotCount]string{"list", "add", "delete", "flush", "insert-image", "delete-fragment", "images", "upload", "search"}

func (s Slot) String() string {
	if s < 0 || s >= slotCount {
		return "slot(" + strconv.Itoa(int(s)) + ")"
	}
	return slotNames[s]
}

// ImageInfo describes an uploaded image.
type ImageInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	URL      string `json:"url"`
}

// SearchResult is one matching text fragment.
type SearchResult struct {
	NoteID      document.NoteID `json:"note_id"`
	FragmentNum int             `json:"fragment_num"`
	Snippet     string          `json:"snippet"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default timeout-configured HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithToken sends token as a Bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger for transport diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the notes API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	session string
	logger  *slog.Logger

	mu   sync.Mutex
	gens [slotCount]uint64
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    defaultClient(),
		session: uuid.NewString(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

// Session returns the id sent in the X-Client-Session header.
func (c *Client) Session() string { return c.session }

// ListNotes returns every note with its id.
func (c *Client) ListNotes(ctx context.Context) ([]document.Entry, error) {
	var resp struct {
		Notes []document.Entry `json:"notes"`
	}
	if err := c.doJSON(ctx, SlotList, http.MethodGet, "/api/notes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notes, nil
}

// AddNote creates a note and returns its id.
func (c *Client) AddNote(ctx context.Context, n document.Note) (document.NoteID, error) {
	var resp struct {
		NoteID document.NoteID `json:"note_id"`
	}
	if err := c.doJSON(ctx, SlotAdd, http.MethodPost, "/api/notes", n, &resp); err != nil {
		return 0, err
	}
	return resp.NoteID, nil
}

// ReplaceNote flushes a whole note.
func (c *Client) ReplaceNote(ctx context.Context, id document.NoteID, n document.Note) error {
	return c.doJSON(ctx, SlotFlush, http.MethodPut, notePath(id), n, nil)
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, id document.NoteID) error {
	return c.doJSON(ctx, SlotDelete, http.MethodDelete, notePath(id), nil, nil)
}

// InsertImage splits text fragment fragmentNum at offset around the named image.
func (c *Client) InsertImage(ctx context.Context, id document.NoteID, fragmentNum, offset int, name string) error {
	body := struct {
		FragmentNum int    `json:"fragment_num"`
		Index       int    `json:"index"`
		ImageName   string `json:"image_name"`
	}{fragmentNum, offset, name}
	return c.doJSON(ctx, SlotInsertImage, http.MethodPost, notePath(id)+"/images", body, nil)
}

// DeleteFragment removes fragment num from a note.
func (c *Client) DeleteFragment(ctx context.Context, id document.NoteID, num int) error {
	return c.doJSON(ctx, SlotDeleteFragment, http.MethodDelete, notePath(id)+"/fragments/"+strconv.Itoa(num), nil, nil)
}

// ListImages returns the image names known to the server.
func (c *Client) ListImages(ctx context.Context) ([]string, error) {
	var resp struct {
		Images []string `json:"images"`
	}
	if err := c.doJSON(ctx, SlotImages, http.MethodGet, "/api/images", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// UploadImage sends raw image bytes under name.
func (c *Client) UploadImage(ctx context.Context, name string, data []byte) (ImageInfo, error) {
	var info ImageInfo
	err := c.do(ctx, SlotUpload, http.MethodPost, "/api/images/"+url.PathEscape(name),
		"application/octet-stream", bytes.NewReader(data), &info)
	return info, err
}

// Search finds text fragments containing query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.doJSON(ctx, SlotSearch, http.MethodGet, "/api/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func notePath(id document.NoteID) string {
	return "/api/notes/" + strconv.FormatInt(int64(id), 10)
}

func (c *Client) begin(slot Slot) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[slot]++
	return c.gens[slot]
}

func (c *Client) current(slot Slot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[slot] == gen
}

func (c *Client) doJSON(ctx context.Context, slot Slot, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, slot, method, path, "", nil, out)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client: %s %s: encode body: %w", method, path, err)
	}
	return c.do(ctx, slot, method, path, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, slot Slot, method, path, contentType string, body io.Reader, out any) error {
	gen := c.begin(slot)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.session)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w: %w", method, path, apperr.ErrIO, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("client: %s %s: read body: %w: %w", method, path, apperr.ErrIO, err)
	}

	if !c.current(slot, gen) {
		c.logger.Debug("client: discarding superseded response",
			slog.String("slot", slot.String()), slog.String("path", path))
		return fmt.Errorf("client: %s %s: %w", method, path, apperr.ErrSuperseded)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: %s %s: decode response: %w: %w", method, path, apperr.ErrIO, err)
	}
	return nil
}

// statusError maps a non-2xx response to the sentinel named by its code.
// Responses without a known code are reported as I/O failures.
func statusError(method, path string, status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)
	msg := e.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	sentinel := apperr.FromCode(e.Code)
	if sentinel == nil {
		sentinel = apperr.ErrIO
	}
	return fmt.Errorf("client: %s %s: status %d: %s: %w", method, path, status, msg, sentinel)
}
