package main

import (
	"log"
	"os"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/exo-lang/loopsched/internal/lsp"
)

const lsName = "scheduler"

var version = "0.0.1"

func main() {
	commonlog.Configure(1, nil)

	h := lsp.NewHandler()
	handler := protocol.Handler{
		Initialize:                     h.Initialize,
		Initialized:                    h.Initialized,
		Shutdown:                       h.Shutdown,
		TextDocumentDidOpen:            h.TextDocumentDidOpen,
		TextDocumentDidClose:           h.TextDocumentDidClose,
		TextDocumentDidChange:          h.TextDocumentDidChange,
		TextDocumentCompletion:         h.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: h.TextDocumentSemanticTokensFull,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Println("Starting scheduling LSP server...")
	if err := s.RunStdio(); err != nil {
		log.Println("Error starting scheduling LSP server:", err)
		os.Exit(1)
	}
}
