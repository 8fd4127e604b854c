package server

import (
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/backend/membed"
	"github.com/reactive-kv/rkv/lib/logger"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/lib/store"
	"github.com/reactive-kv/rkv/lib/store/rstore"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"

	_ "net/http/pprof"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server serving a reactive store over
// the given transport. It takes a config, transport and serializer as
// parameters.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	codec serializer.ISerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: codec,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.ISerializer
	store      store.IStore
	adapter    IRPCServerAdapter
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(conn transport.IServerConn, requestID uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Decode the request
		err := s.serializer.Deserialize(req, &msg)

		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else {
			// Let the adapter handle the request
			respMsg = *s.adapter.Handle(conn, requestID, &msg, s.store)
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("Failed to serialize response: %v", err)
			return nil
		}
		return val
	})
}

func (s *rpcServer) init() error {

	// Init logger
	if s.config.LogLevel != "" {
		logger.SetAllLevels(logger.ParseLevel(s.config.LogLevel))
	}

	// Create the reactive store served by this server. The wire
	// serializer doubles as the store's canonical codec, so values read
	// back exactly as clients sent them.
	s.store = rstore.NewReactiveStore(
		func() backend.IBackend { return membed.NewMembedBackend(membed.DefaultOptions()) },
		&rstore.Options{
			Collections: s.config.Collections,
			Serializer:  s.serializer,
		},
	)
	s.adapter = NewIStoreServerAdapter(s.serializer)

	Logger.Infof("rkv store setup completed successfully")

	// Expose Prometheus metrics if configured
	if s.config.MetricsEndpoint != "" {
		go s.serveMetrics()
	}

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// serveMetrics exposes the process metrics under /metrics
func (s *rpcServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	Logger.Infof("Starting metrics server on %s", s.config.MetricsEndpoint)
	if err := http.ListenAndServe(s.config.MetricsEndpoint, mux); err != nil {
		Logger.Errorf("Metrics server failed: %v", err)
	}
}

// Serve starts the RPC server
// This function will also initialize the store and start the transport layer
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}
