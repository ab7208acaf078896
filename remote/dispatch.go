package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

func toPathParams(u uri.URI) PathParams {
	return PathParams{Scheme: u.Scheme, Authority: u.Authority, Path: u.Path}
}

func (p PathParams) toURI() uri.URI {
	return uri.URI{Scheme: p.Scheme, Authority: p.Authority, Path: p.Path}
}

func toStatResult(st provider.FileStat) StatResult {
	return StatResult{Type: int(st.Type), Size: st.Size, Mtime: st.Mtime.UnixNano(), Name: st.Name}
}

func fromStatResult(r StatResult) provider.FileStat {
	return provider.FileStat{Type: provider.FileType(r.Type), Size: r.Size, Name: r.Name}
}

func toWireError(err error) *WireError {
	if opErr, ok := err.(*vfsmux.OperationError); ok {
		return &WireError{Result: int(opErr.Result), Op: opErr.Op, Resource: opErr.Resource, Message: opErr.Error()}
	}
	return &WireError{Result: int(vfsmux.Unknown), Message: err.Error()}
}

func fromWireError(w *WireError) error {
	if w == nil {
		return nil
	}
	return vfsmux.NewOperationError(vfsmux.Result(w.Result), w.Op, w.Resource, errorString(w.Message))
}

type errorString string

func (e errorString) Error() string { return string(e) }

// dispatch runs one decoded request against the wrapped provider and
// returns the raw JSON result payload. send is used by MethodWatch to
// push subsequent ChangeEvent frames back over the same connection the
// request arrived on, sharing Serve's single writer lock.
func (s *Server) dispatch(ctx context.Context, req Request, send func(interface{}) error) (json.RawMessage, error) {
	switch req.Method {
	case MethodCapabilities:
		return marshal(CapabilitiesResult{Bits: uint32(s.provider.Capabilities())})

	case MethodStat:
		var params PathParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		st, err := s.provider.Stat(ctx, params.toURI())
		if err != nil {
			return nil, err
		}
		return marshal(toStatResult(st))

	case MethodReadDirectory:
		var params PathParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		entries, err := s.provider.ReadDirectory(ctx, params.toURI())
		if err != nil {
			return nil, err
		}
		out := ReadDirectoryResult{}
		for _, e := range entries {
			out.Entries = append(out.Entries, DirEntryWire{Name: e.Name, Stat: toStatResult(e.Stat)})
		}
		return marshal(out)

	case MethodCreateDirectory:
		var params PathParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.provider.CreateDirectory(ctx, params.toURI()); err != nil {
			return nil, err
		}
		return marshal(struct{}{})

	case MethodDelete:
		var params DeleteParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.provider.Delete(ctx, params.toURI(), params.Recursive); err != nil {
			return nil, err
		}
		return marshal(struct{}{})

	case MethodRename:
		var params RenameParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.provider.Rename(ctx, params.Old.toURI(), params.New.toURI(), params.Overwrite); err != nil {
			return nil, err
		}
		return marshal(struct{}{})

	case MethodReadFile:
		var params PathParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		wp, ok := provider.IsWholeFile(s.provider)
		if !ok {
			return nil, vfsmux.NewOperationError(vfsmux.NotSupported, "ReadFile", params.Path, nil)
		}
		rc, err := wp.ReadFile(ctx, params.toURI())
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return marshal(ReadFileResult{Data: data})

	case MethodWriteFile:
		var params WriteFileParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		wp, ok := provider.IsWholeFile(s.provider)
		if !ok {
			return nil, vfsmux.NewOperationError(vfsmux.NotSupported, "WriteFile", params.Path, nil)
		}
		if err := wp.WriteFile(ctx, params.toURI(), bytes.NewReader(params.Data)); err != nil {
			return nil, err
		}
		return marshal(struct{}{})

	case MethodWatch:
		var params WatchParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		wp, ok := provider.IsWatchable(s.provider)
		if !ok {
			return nil, vfsmux.NewOperationError(vfsmux.NotSupported, "Watch", params.Path, nil)
		}
		watchCtx, cancel := context.WithCancel(ctx)
		events, err := wp.Watch(watchCtx, params.toURI(), params.Recursive)
		if err != nil {
			cancel()
			return nil, err
		}
		s.mu.Lock()
		s.watchers[params.WatchID] = cancel
		s.mu.Unlock()

		go s.pumpWatchEvents(params.WatchID, events, send)
		return marshal(struct{}{})

	case MethodUnwatch:
		var params struct {
			WatchID string `json:"watchId"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		if cancel, ok := s.watchers[params.WatchID]; ok {
			cancel()
			delete(s.watchers, params.WatchID)
		}
		s.mu.Unlock()
		return marshal(struct{}{})

	default:
		return nil, vfsmux.NewOperationError(vfsmux.NotSupported, string(req.Method), "", nil)
	}
}

func (s *Server) pumpWatchEvents(watchID string, events <-chan provider.ChangeEvent, send func(interface{}) error) {
	for ev := range events {
		push := Request{
			Method: MethodChangeEvent,
			Params: mustMarshal(ChangeEventPush{WatchID: watchID, Type: int(ev.Type), PathParams: toPathParams(ev.Path)}),
		}
		if err := send(push); err != nil {
			s.log.WithError(err).Debug("change event push failed, dropping watcher")
			return
		}
	}
}

func marshal(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
