package serve

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	cmdUtil "github.com/reactive-kv/rkv/cmd/util"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/server"
	"github.com/reactive-kv/rkv/rpc/transport"
	"github.com/reactive-kv/rkv/rpc/transport/http"
	"github.com/reactive-kv/rkv/rpc/transport/tcp"
	"github.com/reactive-kv/rkv/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the rkv server",
		Long:    `Start the rkv server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/rkv.sock, ...)"))

	key = "collections"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of key prefixes served as collections (e.g. 'users_,sessions_'). Keys sharing a configured prefix can be watched and merged as one collection"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Per-request timeout in seconds, 0 disables deadlines"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address to serve Prometheus metrics on (e.g. ':2112'). Metrics are disabled if unset"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse collections
	serveCmdConfig.Collections = nil
	if raw := viper.GetString("collections"); raw != "" {
		for _, prefix := range strings.Split(raw, ",") {
			prefix = strings.TrimSpace(prefix)
			if prefix == "" {
				return fmt.Errorf("empty collection prefix in %q", raw)
			}
			serveCmdConfig.Collections = append(serveCmdConfig.Collections, prefix)
		}
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the rkv server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.ISerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "cbor":
		s = serializer.NewCBORSerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPDefaultServerTransport()
	case "unix":
		t = unix.NewUnixDefaultServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
