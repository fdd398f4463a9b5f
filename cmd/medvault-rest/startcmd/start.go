/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/agent/ws"
	"github.com/medvault/medvault-go/pkg/backend"
	"github.com/medvault/medvault-go/pkg/common/log"
	"github.com/medvault/medvault-go/pkg/controller"
	recordcmd "github.com/medvault/medvault-go/pkg/controller/command/record"
	recordrest "github.com/medvault/medvault-go/pkg/controller/rest/record"
	"github.com/medvault/medvault-go/pkg/record"
)

const (
	// config file flag.
	configFileFlagName  = "config-file"
	configFileEnvKey    = "MEDVAULT_CONFIG_FILE"
	configFileFlagUsage = "YAML file with default values for the other settings, keyed by flag name." +
		" Alternatively, this can be set with the following environment variable: " + configFileEnvKey

	// api host flag.
	apiHostFlagName      = "api-host"
	apiHostEnvKey        = "MEDVAULT_API_HOST"
	apiHostFlagShorthand = "a"
	apiHostFlagUsage     = "Host Name:Port of the controller API. Defaults to " + apiHostDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + apiHostEnvKey
	apiHostDefault = "localhost:8082"

	// api token flag.
	apiTokenFlagName      = "api-token"
	apiTokenEnvKey        = "MEDVAULT_API_TOKEN" // nolint:gosec
	apiTokenFlagShorthand = "t"
	apiTokenFlagUsage     = "Check for this token in the " + apiTokenHeader + " header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + apiTokenEnvKey

	// backend url flag.
	backendURLFlagName      = "backend-url"
	backendURLEnvKey        = "MEDVAULT_BACKEND_URL"
	backendURLFlagShorthand = "b"
	backendURLFlagUsage     = "URL of the records backend. Defaults to " + backend.DefaultURL + "." +
		" Alternatively, this can be set with the following environment variable: " + backendURLEnvKey

	// backend token flag.
	backendTokenFlagName  = "backend-token"
	backendTokenEnvKey    = "MEDVAULT_BACKEND_TOKEN" // nolint:gosec
	backendTokenFlagUsage = "Bearer token sent to the backend when a request carries none (optional)." +
		" Alternatively, this can be set with the following environment variable: " + backendTokenEnvKey

	// agent url flag.
	agentURLFlagName      = "agent-url"
	agentURLEnvKey        = "MEDVAULT_AGENT_URL"
	agentURLFlagShorthand = "u"
	agentURLFlagUsage     = "Websocket URL of the local key agent. Defaults to " + agent.DefaultURL + "." +
		" Alternatively, this can be set with the following environment variable: " + agentURLEnvKey

	// agent protocol flag.
	agentProtocolFlagName      = "agent-protocol"
	agentProtocolEnvKey        = "MEDVAULT_AGENT_PROTOCOL"
	agentProtocolFlagShorthand = "p"
	agentProtocolFlagUsage     = "Wire protocol of the local key agent." +
		" Possible values [" + agent.TaggedProtocol + "] [" + agent.LegacyProtocol + "]." +
		" Defaults to " + agent.TaggedProtocol + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + agentProtocolEnvKey

	// agent timeout flag.
	agentTimeoutFlagName  = "agent-timeout"
	agentTimeoutEnvKey    = "MEDVAULT_AGENT_TIMEOUT"
	agentTimeoutFlagUsage = "How long a request waits for the local agent, as a duration." +
		" Defaults to " + agentTimeoutDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + agentTimeoutEnvKey
	agentTimeoutDefault = "30s"

	// agent dial retries flag.
	agentDialRetriesFlagName  = "agent-dial-retries"
	agentDialRetriesEnvKey    = "MEDVAULT_AGENT_DIAL_RETRIES"
	agentDialRetriesFlagUsage = "Extra attempts, one second apart, when connecting to the local agent." +
		" Defaults to 0." +
		" Alternatively, this can be set with the following environment variable: " + agentDialRetriesEnvKey

	// agent TLS flags.
	agentCAFileFlagName  = "agent-ca-file"
	agentCAFileEnvKey    = "MEDVAULT_AGENT_CA_FILE"
	agentCAFileFlagUsage = "PEM file with the certificate authority of the local agent (optional)." +
		" Alternatively, this can be set with the following environment variable: " + agentCAFileEnvKey

	agentInsecureFlagName  = "agent-tls-insecure"
	agentInsecureEnvKey    = "MEDVAULT_AGENT_TLS_INSECURE"
	agentInsecureFlagUsage = "Skip verification of the local agent certificate." +
		" Possible values [true] [false]. Defaults to false if not set." +
		" Alternatively, this can be set with the following environment variable: " + agentInsecureEnvKey

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "MEDVAULT_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	// log format.
	logFormatFlagName  = "log-format"
	logFormatEnvKey    = "MEDVAULT_LOG_FORMAT"
	logFormatFlagUsage = "Log format. Possible values [text] [json]. Defaults to text if not set." +
		" Alternatively, this can be set with the following environment variable: " + logFormatEnvKey

	// cors origins.
	corsOriginsFlagName  = "cors-origins"
	corsOriginsEnvKey    = "MEDVAULT_CORS_ORIGINS"
	corsOriginsFlagUsage = "Origins allowed to call the API. This flag can be repeated. Defaults to any origin." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " +
		corsOriginsEnvKey

	// metrics.
	metricsFlagName  = "metrics"
	metricsEnvKey    = "MEDVAULT_METRICS"
	metricsFlagUsage = "Expose prometheus metrics on " + controller.MetricsPath + "." +
		" Possible values [true] [false]. Defaults to true if not set." +
		" Alternatively, this can be set with the following environment variable: " + metricsEnvKey

	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileEnvKey        = "MEDVAULT_TLS_CERT_FILE"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileEnvKey        = "MEDVAULT_TLS_KEY_FILE"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	// the Authorization header carries the caller's backend token
	apiTokenHeader = "X-Api-Token"

	logFormatText = "text"
	logFormatJSON = "json"

	agentDialInterval = time.Second
)

var logger = log.New("medvault/rest-daemon")

type daemonParameters struct {
	server                  server
	host, token             string
	tlsCertFile, tlsKeyFile string
	backendURL              string
	backendToken            string
	agentURL, agentProtocol string
	agentTimeout            time.Duration
	agentDialRetries        uint64
	agentCAFile             string
	agentInsecure           bool
	corsOrigins             []string
	metrics                 bool
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router) //nolint:gosec
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the controller",
		Long:  `Start the medvault controller REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParameters(cmd, server)
			if err != nil {
				return err
			}

			return startDaemon(parameters)
		},
	}
}

//nolint:funlen,gocyclo
func getParameters(cmd *cobra.Command, server server) (*daemonParameters, error) {
	configFile, err := getUserSetVar(cmd, configFileFlagName, configFileEnvKey, nil, "")
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(configFile)
	if err != nil {
		return nil, err
	}

	logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, cfg, "")
	if err != nil {
		return nil, err
	}

	if err = setLogLevel(logLevel); err != nil {
		return nil, err
	}

	logFormat, err := getUserSetVar(cmd, logFormatFlagName, logFormatEnvKey, cfg, logFormatText)
	if err != nil {
		return nil, err
	}

	if err = setLogFormat(logFormat); err != nil {
		return nil, err
	}

	parameters := &daemonParameters{server: server}

	settings := []struct {
		flagName, envKey, def string
		dst                   *string
	}{
		{apiHostFlagName, apiHostEnvKey, apiHostDefault, &parameters.host},
		{apiTokenFlagName, apiTokenEnvKey, "", &parameters.token},
		{tlsCertFileFlagName, tlsCertFileEnvKey, "", &parameters.tlsCertFile},
		{tlsKeyFileFlagName, tlsKeyFileEnvKey, "", &parameters.tlsKeyFile},
		{backendURLFlagName, backendURLEnvKey, backend.DefaultURL, &parameters.backendURL},
		{backendTokenFlagName, backendTokenEnvKey, "", &parameters.backendToken},
		{agentURLFlagName, agentURLEnvKey, agent.DefaultURL, &parameters.agentURL},
		{agentProtocolFlagName, agentProtocolEnvKey, agent.TaggedProtocol, &parameters.agentProtocol},
		{agentCAFileFlagName, agentCAFileEnvKey, "", &parameters.agentCAFile},
	}

	for _, s := range settings {
		*s.dst, err = getUserSetVar(cmd, s.flagName, s.envKey, cfg, s.def)
		if err != nil {
			return nil, err
		}
	}

	timeout, err := getUserSetVar(cmd, agentTimeoutFlagName, agentTimeoutEnvKey, cfg, agentTimeoutDefault)
	if err != nil {
		return nil, err
	}

	parameters.agentTimeout, err = time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent timeout %s: %w", timeout, err)
	}

	retries, err := getUserSetVar(cmd, agentDialRetriesFlagName, agentDialRetriesEnvKey, cfg, "0")
	if err != nil {
		return nil, err
	}

	parameters.agentDialRetries, err = strconv.ParseUint(retries, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent dial retries %s: %w", retries, err)
	}

	parameters.agentInsecure, err = getBoolValue(cmd, agentInsecureFlagName, agentInsecureEnvKey, cfg, false)
	if err != nil {
		return nil, err
	}

	parameters.metrics, err = getBoolValue(cmd, metricsFlagName, metricsEnvKey, cfg, true)
	if err != nil {
		return nil, err
	}

	parameters.corsOrigins, err = getUserSetVars(cmd, corsOriginsFlagName, corsOriginsEnvKey, cfg)
	if err != nil {
		return nil, err
	}

	return parameters, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(configFileFlagName, "", "", configFileFlagUsage)
	startCmd.Flags().StringP(apiHostFlagName, apiHostFlagShorthand, "", apiHostFlagUsage)
	startCmd.Flags().StringP(apiTokenFlagName, apiTokenFlagShorthand, "", apiTokenFlagUsage)
	startCmd.Flags().StringP(backendURLFlagName, backendURLFlagShorthand, "", backendURLFlagUsage)
	startCmd.Flags().StringP(backendTokenFlagName, "", "", backendTokenFlagUsage)
	startCmd.Flags().StringP(agentURLFlagName, agentURLFlagShorthand, "", agentURLFlagUsage)
	startCmd.Flags().StringP(agentProtocolFlagName, agentProtocolFlagShorthand, "", agentProtocolFlagUsage)
	startCmd.Flags().StringP(agentTimeoutFlagName, "", "", agentTimeoutFlagUsage)
	startCmd.Flags().StringP(agentDialRetriesFlagName, "", "", agentDialRetriesFlagUsage)
	startCmd.Flags().StringP(agentCAFileFlagName, "", "", agentCAFileFlagUsage)
	startCmd.Flags().StringP(agentInsecureFlagName, "", "", agentInsecureFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
	startCmd.Flags().StringP(logFormatFlagName, "", "", logFormatFlagUsage)
	startCmd.Flags().StringSliceP(corsOriginsFlagName, "", []string{}, corsOriginsFlagUsage)
	startCmd.Flags().StringP(metricsFlagName, "", "", metricsFlagUsage)

	// tls cert file
	startCmd.Flags().StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)

	// tls key file
	startCmd.Flags().StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)
}

// fileConfig holds the values of the config file keyed by flag name.
type fileConfig map[string]interface{}

func loadConfigFile(path string) (fileConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := fileConfig{}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

func (c fileConfig) lookup(key string) (string, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", false
	}

	if list, isList := v.([]interface{}); isList {
		values := make([]string, 0, len(list))
		for _, item := range list {
			values = append(values, fmt.Sprint(item))
		}

		return strings.Join(values, ","), true
	}

	return fmt.Sprint(v), true
}

// getUserSetVar returns the flag value, else the environment, else the config file, else def.
func getUserSetVar(cmd *cobra.Command, flagName, envKey string, cfg fileConfig, def string) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	if value, isSet := os.LookupEnv(envKey); isSet {
		return value, nil
	}

	if value, isSet := cfg.lookup(flagName); isSet {
		return value, nil
	}

	return def, nil
}

func getUserSetVars(cmd *cobra.Command, flagName, envKey string, cfg fileConfig) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	if value, isSet := os.LookupEnv(envKey); isSet {
		return strings.Split(value, ","), nil
	}

	if value, isSet := cfg.lookup(flagName); isSet && value != "" {
		return strings.Split(value, ","), nil
	}

	return nil, nil
}

func getBoolValue(cmd *cobra.Command, flagName, envKey string, cfg fileConfig, def bool) (bool, error) {
	v, err := getUserSetVar(cmd, flagName, envKey, cfg, strconv.FormatBool(def))
	if err != nil {
		return false, err
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s value '%s' : %w", flagName, v, err)
	}

	return b, nil
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func setLogFormat(format string) error {
	switch format {
	case logFormatText, "":
		log.UseJSONFormat(false)
	case logFormatJSON:
		log.UseJSONFormat(true)
	default:
		return fmt.Errorf("unsupported log format '%s'", format)
	}

	return nil
}

func validateAPIToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get(apiTokenHeader)

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(token)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

func authorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAPIToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}

// services wires the record workflow for the controller.
type services struct {
	svc   *record.Service
	agent *agent.Client
}

func (s *services) RecordService() recordcmd.Service { return s.svc }

func (s *services) Agent() recordcmd.Agent { return s.agent }

func createServices(parameters *daemonParameters) (*services, error) {
	var dialerOpts []ws.Option

	if parameters.agentCAFile != "" {
		dialerOpts = append(dialerOpts, ws.WithCAFile(parameters.agentCAFile))
	}

	if parameters.agentInsecure {
		dialerOpts = append(dialerOpts, ws.WithInsecureSkipVerify(true))
	}

	dialer, err := ws.NewDialer(dialerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent dialer: %w", err)
	}

	codec, err := agent.NewCodec(parameters.agentProtocol)
	if err != nil {
		return nil, err
	}

	client, err := agent.New(parameters.agentURL,
		agent.WithDialer(dialer),
		agent.WithCodec(codec),
		agent.WithTimeout(parameters.agentTimeout),
		agent.WithDialRetries(parameters.agentDialRetries, agentDialInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent client: %w", err)
	}

	var backendOpts []backend.Option

	if parameters.backendToken != "" {
		backendOpts = append(backendOpts, backend.WithToken(parameters.backendToken))
	}

	return &services{
		svc:   record.New(client, backend.New(parameters.backendURL, backendOpts...)),
		agent: client,
	}, nil
}

func newRouter(parameters *daemonParameters, s *services) http.Handler {
	handlers := controller.GetRESTHandlers(s, controller.WithMetrics(parameters.metrics))

	router := mux.NewRouter()

	if parameters.token != "" {
		router.Use(authorizationMiddleware(parameters.token))
	}

	for _, handler := range handlers {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	return cors.New(
		cors.Options{
			AllowedOrigins: parameters.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{
				"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization", apiTokenHeader,
				recordrest.UserIDHeader, recordrest.UserNameHeader, recordrest.UserRoleHeader,
			},
		},
	).Handler(router)
}

var errMissingHost = errors.New("host not provided")

func startDaemon(parameters *daemonParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	s, err := createServices(parameters)
	if err != nil {
		return fmt.Errorf("failed to start medvault rest on [%s]: %w", parameters.host, err)
	}

	defer func() {
		if errClose := s.agent.Close(); errClose != nil {
			logger.Warnf("failed to close agent client: %s", errClose)
		}
	}()

	// the agent may come up later; requests connect on demand
	ctx, cancel := context.WithTimeout(context.Background(), parameters.agentTimeout)
	if err := s.agent.Connect(ctx); err != nil {
		logger.Warnf("local agent at %s is not reachable yet: %s", parameters.agentURL, err)
	}

	cancel()

	logger.Infof("Starting medvault rest on host [%s]", parameters.host)

	err = parameters.server.ListenAndServe(parameters.host, newRouter(parameters, s),
		parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start medvault rest on [%s], cause:  %w", parameters.host, err)
	}

	return nil
}
