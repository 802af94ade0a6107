// Package batch runs independent queries concurrently. Requests arrive on
// a channel and each one is handled in its own goroutine; the reply goes
// to the channel carried by the request.
package batch

import (
	"errors"
	"fmt"

	"github.com/rs/xid"

	"cdvs/internal/descriptor"
	"cdvs/internal/engine"
	"cdvs/internal/logger"
	"cdvs/internal/types"
)

var ErrInvalidParams = errors.New("invalid params")

// Engine is what the manager dispatches to.
type Engine interface {
	engine.Decoder
	engine.Matcher
	engine.Retriever
}

// MatchPairRequest compares two descriptors.
type MatchPairRequest struct {
	Query   *descriptor.Descriptor
	Ref     *descriptor.Descriptor
	Options engine.MatchOptions
}

// MatchIndexRequest compares a descriptor with a database row.
type MatchIndexRequest struct {
	Query   *descriptor.Descriptor
	Row     int
	Options engine.MatchOptions
}

// RetrieveRequest ranks the database against a descriptor.
type RetrieveRequest struct {
	Query *descriptor.Descriptor
	Limit int
}

// DecodeRequest reads a descriptor bitstream.
type DecodeRequest struct {
	Data []byte
}

type Manager struct {
	Engine   Engine
	Requests chan types.RequestContext
}

func NewManager(e Engine) *Manager {
	return &Manager{
		Engine:   e,
		Requests: make(chan types.RequestContext, 100),
	}
}

func (m *Manager) Start() {
	go m.dispatch()
}

// Stop closes the request channel. Requests already dispatched still
// reply. Stop must be called after the last Submit or Run returns; a later
// Submit panics on the closed channel.
func (m *Manager) Stop() {
	close(m.Requests)
}

func (m *Manager) dispatch() {
	for req := range m.Requests {
		go m.handle(req)
	}
}

// Submit queues one request and returns the channel its reply arrives on.
// It must not be called after Stop.
func (m *Manager) Submit(op types.Operation, params interface{}) (string, <-chan types.ResponseContext) {
	reply := make(chan types.ResponseContext, 1)
	id := xid.New().String()
	m.Requests <- types.RequestContext{ReqID: id, Operation: op, Params: params, RespChan: reply}
	return id, reply
}

// Run submits every request and returns the replies in request order.
func (m *Manager) Run(op types.Operation, params []interface{}) []types.ResponseContext {
	replies := make([]<-chan types.ResponseContext, len(params))
	for i, p := range params {
		_, replies[i] = m.Submit(op, p)
	}
	out := make([]types.ResponseContext, len(params))
	for i, r := range replies {
		out[i] = <-r
	}
	return out
}

func (m *Manager) handle(req types.RequestContext) {
	var resp types.ResponseContext
	resp.ReqID = req.ReqID
	logger.Debug("Batch manager: handling request %s (op: %s)", req.ReqID, req.Operation)
	switch req.Operation {

	case types.OpMatchPair:
		if params, ok := req.Params.(*MatchPairRequest); ok {
			resp.Data, resp.Error = m.Engine.Match(params.Query, params.Ref, params.Options)
		} else {
			resp.Error = ErrInvalidParams
		}

	case types.OpMatchIndex:
		if params, ok := req.Params.(*MatchIndexRequest); ok {
			resp.Data, resp.Error = m.Engine.MatchIndex(params.Query, params.Row, params.Options)
		} else {
			resp.Error = ErrInvalidParams
		}

	case types.OpRetrieve:
		if params, ok := req.Params.(*RetrieveRequest); ok {
			resp.Data, resp.Error = m.Engine.Retrieve(params.Query, params.Limit)
		} else {
			resp.Error = ErrInvalidParams
		}

	case types.OpDecode:
		if params, ok := req.Params.(*DecodeRequest); ok {
			resp.Data, resp.Error = m.Engine.Decode(params.Data)
		} else {
			resp.Error = ErrInvalidParams
		}

	default:
		resp.Error = fmt.Errorf("operation %s not implemented", req.Operation)
	}

	resp.Success = resp.Error == nil
	if !resp.Success {
		resp.Data = nil
		logger.Warn("Batch manager: request %s failed: %v", req.ReqID, resp.Error)
	}

	select {
	case req.RespChan <- resp:
	default:
	}
}
