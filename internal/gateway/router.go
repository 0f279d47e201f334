package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// MethodHandler processes a single WebSocket request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to the appropriate handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("gateway.unknown_method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	slog.Debug("gateway.handling_method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodAnalysisStart, r.handleStart)
	r.Register(protocol.MethodAnalysisCancel, r.handleCancel)
	r.Register(protocol.MethodAnalysisGet, r.handleGet)
	r.Register(protocol.MethodRunGet, r.handleRunGet)
	r.Register(protocol.MethodSchedulesList, r.handleSchedules)
}

func (r *MethodRouter) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, r.server.healthPayload()))
}

func (r *MethodRouter) handleStart(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params protocol.StartParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "malformed params: "+err.Error()))
			return
		}
	}
	_, resp := r.server.startRun(req.ID, client.rateKey, params)
	client.SendResponse(resp)
}

func (r *MethodRouter) handleCancel(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	runID, err := r.server.runner.Cancel()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]string{"runId": runID}))
}

func (r *MethodRouter) handleGet(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	snap, active := r.server.runner.Current()
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"active":   active,
		"snapshot": snap,
	}))
}

func (r *MethodRouter) handleRunGet(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		RunID string `json:"runId"`
	}
	if len(req.Params) > 0 {
		json.Unmarshal(req.Params, &params)
	}
	snap, ok := r.server.runner.Lookup(params.RunID)
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "run not found: "+params.RunID))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, snap))
}
