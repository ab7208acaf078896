package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

// Dialer reconnects the underlying transport. The client calls it once
// up front and again every time the connection drops, so a Client
// outlives any single TCP connection.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// preNegotiationCaps is what Capabilities reports before the first
// Negotiate completes: the conservative default the spec mandates for
// an unnegotiated remote mount, rather than an empty set that would
// make every capability-gated path (write, random access, folder
// copy) look unsupported before the handshake has had a chance to run.
const preNegotiationCaps = capability.Set(capability.FileReadWrite | capability.FileOpenReadWriteClose | capability.FileFolderCopy)

// watchEntry retains everything needed to re-issue a watch on
// reconnect alongside the channel events are delivered on.
type watchEntry struct {
	params WatchParams
	ch     chan provider.ChangeEvent
}

// Client implements provider.BaseProvider, provider.WholeFileProvider,
// provider.WatchProvider and provider.CapabilityChangeNotifier by
// forwarding every call across a Dialer-managed connection to a remote
// Server. Until the first Capabilities round trip completes,
// Capabilities reports preNegotiationCaps rather than an empty set.
type Client struct {
	dial Dialer
	log  *logrus.Entry

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	pending  map[uint64]chan Response
	nextID   uint64
	watchIDs map[string]watchEntry

	capsKnown     int32
	caps          capability.Set
	capsListeners []func(capability.Set)
}

var _ provider.BaseProvider = (*Client)(nil)
var _ provider.WholeFileProvider = (*Client)(nil)
var _ provider.WatchProvider = (*Client)(nil)
var _ provider.CapabilityChangeNotifier = (*Client)(nil)

// NewClient creates a Client that dials lazily on first use.
func NewClient(dial Dialer, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Client{
		dial:     dial,
		log:      log.WithField("component", "remote.client"),
		pending:  make(map[uint64]chan Response),
		watchIDs: make(map[string]watchEntry),
	}
}

// Capabilities reports the last negotiated or pushed capability set,
// or preNegotiationCaps if neither has happened yet.
func (c *Client) Capabilities() capability.Set {
	if atomic.LoadInt32(&c.capsKnown) == 0 {
		return preNegotiationCaps
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// OnCapabilitiesChanged registers fn to be called with the new
// capability set every time a notifyDidChangeCapabilities push arrives,
// implementing provider.CapabilityChangeNotifier so registry (and, via
// it, fileservice.Service.OnDidChangeProviderCapabilities) has
// something to subscribe to for a remote mount.
func (c *Client) OnCapabilitiesChanged(fn func(capability.Set)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capsListeners = append(c.capsListeners, fn)
}

func (c *Client) setCaps(caps capability.Set) {
	c.mu.Lock()
	c.caps = caps
	listeners := append([]func(capability.Set){}, c.capsListeners...)
	c.mu.Unlock()
	atomic.StoreInt32(&c.capsKnown, 1)
	for _, fn := range listeners {
		fn(caps)
	}
}

// Negotiate fetches and caches the remote provider's capability set.
// Call it once after connecting; fileservice and registry do not call
// it on their own.
func (c *Client) Negotiate(ctx context.Context) error {
	raw, err := c.call(ctx, MethodCapabilities, struct{}{})
	if err != nil {
		return err
	}
	var res CapabilitiesResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return err
	}
	c.setCaps(capability.Set(res.Bits))
	return nil
}

func (c *Client) ensureConn(ctx context.Context) (io.ReadWriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.readLoop(conn)
	c.reissueWatchesLocked(ctx)
	return conn, nil
}

// reissueWatchesLocked re-sends a Watch request, with its original
// watcher ID, for every watch the client still has an open event
// channel for, matching the spec's reconnect semantics: a consumer of
// Watch should not have to notice a transient reconnect to keep
// receiving events. Called with c.mu held; the actual re-issue happens
// on its own goroutine since call() itself needs to lock c.mu.
func (c *Client) reissueWatchesLocked(ctx context.Context) {
	entries := make([]watchEntry, 0, len(c.watchIDs))
	for _, e := range c.watchIDs {
		entries = append(entries, e)
	}
	for _, e := range entries {
		go func(params WatchParams) {
			if _, err := c.call(ctx, MethodWatch, params); err != nil {
				c.log.WithField("watchId", params.WatchID).WithError(err).
					Warn("failed to re-issue watch after reconnect")
			}
		}(e.params)
	}
}

func (c *Client) readLoop(conn io.ReadWriteCloser) {
	for {
		var frame json.RawMessage
		if err := ReadFrame(conn, &frame); err != nil {
			c.log.WithError(err).Debug("remote connection read loop ended")
			c.dropConn(conn)
			return
		}
		c.routeFrame(frame)
	}
}

func (c *Client) dropConn(conn io.ReadWriteCloser) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) routeFrame(frame json.RawMessage) {
	// A frame is either a Response (has "id" and one of
	// result/error) or a server-pushed Request (MethodChangeEvent,
	// MethodChangeCapabilities).
	var probe struct {
		ID     uint64  `json:"id"`
		Method *Method `json:"method"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return
	}
	if probe.Method != nil && *probe.Method == MethodChangeEvent {
		var req Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return
		}
		var push ChangeEventPush
		if err := json.Unmarshal(req.Params, &push); err != nil {
			return
		}
		c.mu.Lock()
		entry, ok := c.watchIDs[push.WatchID]
		c.mu.Unlock()
		if ok {
			select {
			case entry.ch <- provider.ChangeEvent{Type: provider.ChangeType(push.Type), Path: push.toURI()}:
			default:
			}
		}
		return
	}
	if probe.Method != nil && *probe.Method == MethodChangeCapabilities {
		var req Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return
		}
		var push CapabilitiesPush
		if err := json.Unmarshal(req.Params, &push); err != nil {
			return
		}
		c.setCaps(capability.Set(push.Bits))
		return
	}

	var resp Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (c *Client) call(ctx context.Context, method Method, params interface{}) (json.RawMessage, error) {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, vfsmux.NewOperationError(vfsmux.Unavailable, string(method), "", err)
	}

	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	id := atomic.AddUint64(&c.nextID, 1)
	replyCh := make(chan Response, 1)

	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()

	req := Request{ID: id, Method: method, Params: paramsRaw}
	if err := WriteFrame(conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.dropConn(conn)
		return nil, vfsmux.NewOperationError(vfsmux.Unavailable, string(method), "", err)
	}

	select {
	case resp := <-replyCh:
		if resp.Err != nil {
			return nil, fromWireError(resp.Err)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, vfsmux.NewOperationError(vfsmux.Cancelled, string(method), "", ctx.Err())
	}
}

func (c *Client) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	raw, err := c.call(ctx, MethodStat, toPathParams(path))
	if err != nil {
		return provider.FileStat{}, err
	}
	var res StatResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return provider.FileStat{}, err
	}
	return fromStatResult(res), nil
}

func (c *Client) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	raw, err := c.call(ctx, MethodReadDirectory, toPathParams(path))
	if err != nil {
		return nil, err
	}
	var res ReadDirectoryResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	out := make([]provider.DirEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, provider.DirEntry{Name: e.Name, Stat: fromStatResult(e.Stat)})
	}
	return out, nil
}

func (c *Client) CreateDirectory(ctx context.Context, path uri.URI) error {
	_, err := c.call(ctx, MethodCreateDirectory, toPathParams(path))
	return err
}

func (c *Client) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	_, err := c.call(ctx, MethodDelete, DeleteParams{PathParams: toPathParams(path), Recursive: recursive})
	return err
}

func (c *Client) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	_, err := c.call(ctx, MethodRename, RenameParams{Old: toPathParams(oldPath), New: toPathParams(newPath), Overwrite: overwrite})
	return err
}

func (c *Client) ReadFile(ctx context.Context, path uri.URI) (io.ReadCloser, error) {
	raw, err := c.call(ctx, MethodReadFile, toPathParams(path))
	if err != nil {
		return nil, err
	}
	var res ReadFileResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(res.Data)), nil
}

func (c *Client) WriteFile(ctx context.Context, path uri.URI, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, MethodWriteFile, WriteFileParams{PathParams: toPathParams(path), Data: buf})
	return err
}

// Watch subscribes to remote change events. The returned channel is
// closed when ctx is done, at which point an Unwatch request is fired
// best-effort to let the server stop forwarding events.
func (c *Client) Watch(ctx context.Context, path uri.URI, recursive bool) (<-chan provider.ChangeEvent, error) {
	watchID := uuid.New().String()
	ch := make(chan provider.ChangeEvent, 16)
	params := WatchParams{PathParams: toPathParams(path), Recursive: recursive, WatchID: watchID}

	c.mu.Lock()
	c.watchIDs[watchID] = watchEntry{params: params, ch: ch}
	c.mu.Unlock()

	_, err := c.call(ctx, MethodWatch, params)
	if err != nil {
		c.mu.Lock()
		delete(c.watchIDs, watchID)
		c.mu.Unlock()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchIDs, watchID)
		close(ch)
		c.mu.Unlock()
		_, _ = c.call(context.Background(), MethodUnwatch, struct {
			WatchID string `json:"watchId"`
		}{watchID})
	}()

	return ch, nil
}

// Close tears down the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (p PathParams) String() string {
	return fmt.Sprintf("%s://%s%s", p.Scheme, p.Authority, p.Path)
}
