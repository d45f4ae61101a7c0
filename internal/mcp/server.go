package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agentkits/memory/internal/entry"
	"github.com/agentkits/memory/internal/logging"
	"github.com/agentkits/memory/internal/search"
	"github.com/agentkits/memory/internal/storage"
)

const serverName = "agentkits-memory"

// Server holds the dependencies one running MCP server instance needs:
// the Entry Repository, the three-layer search engine, and the raw
// storage handle for status/list/delete operations that don't go through
// the hybrid query algorithm.
type Server struct {
	repo   *entry.Repository
	engine *search.Engine
	store  storage.Storage
	dbPath string
	log    *logging.Logger
}

// NewServer builds a Server whose logger is bound to stderr for the whole
// process lifetime (spec §4.9): stdout is the JSON-RPC wire and must never
// carry a log line.
func NewServer(repo *entry.Repository, engine *search.Engine, store storage.Storage, dbPath string) *Server {
	return &Server{repo: repo, engine: engine, store: store, dbPath: dbPath, log: logging.New(os.Stderr)}
}

// SetLogger lets a caller swap in a pre-configured logger (a different
// level, or a test's in-memory sink) instead of the stderr default.
func (s *Server) SetLogger(log *logging.Logger) {
	s.log = log
}

// Serve runs the JSON-RPC read loop: one frame in, at most one frame out,
// until r is exhausted or returns an error.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	s.log.Info("mcp server starting")
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("malformed request frame", "error", err.Error())
			resp := jsonRPCResponse{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: codeParseError, Message: "Parse error", Data: err.Error()},
			}
			s.write(w, resp)
			continue
		}

		resp := s.handleRequest(ctx, req)
		// notifications (no id) produce no response frame.
		if req.ID == nil {
			continue
		}
		s.write(w, resp)
	}
	if err := scanner.Err(); err != nil {
		s.log.Error("mcp server read loop ended", "error", err.Error())
		return err
	}
	s.log.Info("mcp server stopped")
	return nil
}

func (s *Server) write(w io.Writer, resp jsonRPCResponse) {
	resp.JSONRPC = "2.0"
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encoding response", "error", err.Error())
		return
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		s.log.Error("writing response", "error", err.Error())
	}
}

func (s *Server) handleRequest(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	switch req.Method {
	case "initialize":
		return jsonRPCResponse{
			ID: req.ID,
			Result: initializeResult{
				ProtocolVersion: protocolVersion,
				Capabilities:    capabilities{Tools: map[string]any{"listChanged": false}},
				ServerInfo:      serverInfo{Name: serverName, Version: "1.0.0"},
			},
		}

	case "notifications/initialized":
		return jsonRPCResponse{}

	case "tools/list":
		return jsonRPCResponse{ID: req.ID, Result: toolsListResult{Tools: toolDefinitions()}}

	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonRPCResponse{ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: "Invalid params", Data: err.Error()}}
		}
		result := s.callTool(ctx, params.Name, params.Arguments)
		return jsonRPCResponse{ID: req.ID, Result: result}

	default:
		return jsonRPCResponse{ID: req.ID, Error: &rpcError{Code: codeMethodNotFound, Message: "Method not found", Data: req.Method}}
	}
}

func (s *Server) callTool(ctx context.Context, name string, args map[string]any) *toolResult {
	handler, ok := toolHandlers[name]
	if !ok {
		return errResult(fmt.Sprintf("unknown tool: %s", name))
	}
	result, err := handler(ctx, s, args)
	if err != nil {
		s.log.Warn("tool call failed", "tool", name, "error", err.Error())
		return errResult(fmt.Sprintf("%s: %v", name, err))
	}
	return result
}
