// Package lsptest provides an in-process fake LSP server for exercising
// the transport, router, session, runner, and orchestrator packages
// without spawning a real language server. The fake is wired over a
// pair of io.Pipe connections and driven by a Script of canned
// responses, matching the framed stdio protocol internal/transport
// implements.
package lsptest

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rockerboo/lsp-benchmark/internal/transport"
)

// DiagnosticsEvent is one publishDiagnostics notification the fake
// server fires after observing a matching didOpen.
type DiagnosticsEvent struct {
	URI         string        // "" matches any opened document
	Delay       time.Duration // delay before firing, relative to didOpen
	Diagnostics []interface{} // nil publishes an empty diagnostics array
}

// Script describes how the fake server answers requests and
// notifications.
type Script struct {
	// InitializeResult is returned for "initialize"; nil means {}.
	InitializeResult interface{}
	// Responses maps a method name to the result it returns.
	// A method absent from this map (and not otherwise handled) gets a
	// null result, classified as "empty" by internal/bench.
	Responses map[string]interface{}
	// ErrorResponses maps a method name to an error message returned as
	// a JSON-RPC error envelope.
	ErrorResponses map[string]string
	// Hang lists methods the server never answers, to exercise T_req /
	// T_idx timeouts.
	Hang map[string]bool
	// Diagnostics fire after the first didOpen whose uri matches.
	Diagnostics []DiagnosticsEvent
	// ExitAfter is a method name after which the server closes its
	// output stream instead of responding, simulating a crashed child.
	// "textDocument/didOpen" is honored specially: the server exits
	// before ever firing diagnostics, so a blocked WaitForDiagnostics
	// observes disconnection rather than a published notification.
	ExitAfter string
}

// NewProcess starts the fake server in a background goroutine and
// returns a *transport.Process wired to it over io.Pipe. Cmd is left
// nil; session.Attach and transport.Process's accessors treat that as
// "no real OS process" and degrade RSS/PID/Kill/Wait accordingly.
func NewProcess(script Script) *transport.Process {
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	clientStream := transport.NewStream(clientIn, clientOut, nil)
	go runFakeServer(serverIn, serverOut, script)

	return &transport.Process{Stream: clientStream}
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func runFakeServer(r io.Reader, w io.WriteCloser, script Script) {
	stream := transport.NewStream(r, w, nil)
	defer w.Close()

	diagnosticsFired := make(map[string]bool)

	for {
		var msg envelope
		if err := stream.ReadObject(&msg); err != nil {
			return
		}

		switch msg.Method {
		case "initialize":
			result := script.InitializeResult
			if result == nil {
				result = map[string]interface{}{}
			}
			writeResult(stream, msg.ID, result)

		case "initialized":
			// notification, no response

		case "shutdown":
			writeResult(stream, msg.ID, nil)

		case "exit":
			return

		case "textDocument/didOpen":
			if script.ExitAfter == "textDocument/didOpen" {
				return
			}
			var params struct {
				TextDocument struct {
					URI string `json:"uri"`
				} `json:"textDocument"`
			}
			_ = json.Unmarshal(msg.Params, &params)
			uri := params.TextDocument.URI
			if diagnosticsFired[uri] {
				continue
			}
			for _, ev := range script.Diagnostics {
				if ev.URI != "" && ev.URI != uri {
					continue
				}
				diagnosticsFired[uri] = true
				ev := ev
				go func() {
					if ev.Delay > 0 {
						time.Sleep(ev.Delay)
					}
					publishDiagnostics(stream, uri, ev.Diagnostics)
				}()
			}

		case "textDocument/didChange", "textDocument/didClose":
			// notifications, no response

		default:
			if len(msg.ID) == 0 {
				continue // unrecognized notification, ignore
			}
			if script.ExitAfter == msg.Method {
				return
			}
			if script.Hang[msg.Method] {
				continue
			}
			if errMsg, ok := script.ErrorResponses[msg.Method]; ok {
				writeError(stream, msg.ID, errMsg)
				continue
			}
			result, ok := script.Responses[msg.Method]
			if !ok {
				result = nil
			}
			writeResult(stream, msg.ID, result)
		}
	}
}

func writeResult(stream *transport.Stream, id json.RawMessage, result interface{}) {
	env := map[string]interface{}{"jsonrpc": "2.0", "result": result}
	if len(id) > 0 {
		env["id"] = json.RawMessage(id)
	}
	_ = stream.WriteObject(env)
}

func writeError(stream *transport.Stream, id json.RawMessage, message string) {
	env := map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcError{Code: -32000, Message: message},
	}
	if len(id) > 0 {
		env["id"] = json.RawMessage(id)
	}
	_ = stream.WriteObject(env)
}

func publishDiagnostics(stream *transport.Stream, uri string, diagnostics []interface{}) {
	if diagnostics == nil {
		diagnostics = []interface{}{}
	}
	env := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": map[string]interface{}{
			"uri":         uri,
			"diagnostics": diagnostics,
		},
	}
	_ = stream.WriteObject(env)
}
