package main

import (
	"context"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/selium-io/selium/broker"
	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/transportquic"
)

var (
	build     string
	buildtime string
)

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}

	// A throwaway first pass learns -config, since flags must win over
	// whatever the file says: the file has to be loaded before the real
	// flag set is built, so its values become that flag set's defaults.
	var configPath string
	pre := flag.NewFlagSet("selium-broker-preparse", flag.ContinueOnError)
	pre.StringVar(&configPath, "config", "", "")
	pre.SetOutput(os.Stderr)
	_ = pre.Parse(os.Args[1:])

	cfg, err := broker.ConfigFromFile(configPath)
	if err != nil {
		exitf("failed to load configuration from %q: %v", configPath, err)
	}

	flset := flag.NewFlagSet("selium-broker", flag.ExitOnError)
	flset.StringVar(&configPath, "config", configPath, "path to a YAML configuration file")
	cfg.RegisterFlags(flset)
	logging.InitFlags(flset)
	if err := flset.Parse(os.Args[1:]); err != nil {
		exitf("failed to parse flags: %v", err)
	}

	logging.Infof("selium-broker %s (build %s)", build, buildtime)

	tlsFiles, err := loadTLSFiles(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		exitf("failed to load TLS material: %v", err)
	}
	tlsConf, err := transportquic.BuildTLSConfig(tlsFiles, true, []string{"selium"})
	if err != nil {
		exitf("failed to build TLS config: %v", err)
	}
	if cfg.KeyLogFile != "" {
		logging.Warningf("selium-broker: transportquic has no TLS keylog hook yet; ignoring -keylog %q", cfg.KeyLogFile)
	}

	endpoint, err := transportquic.Listen(cfg.BindAddr, tlsConf, cfg.MaxIdleTimeout, cfg.StatelessRetry)
	if err != nil {
		exitf("failed to listen on %s: %v", cfg.BindAddr, err)
	}

	archiver, err := buildArchiver(context.Background(), cfg)
	if err != nil {
		exitf("failed to set up segment archiver: %v", err)
	}

	cloudAuthCfg, err := buildCloudAuthConfig(cfg)
	if err != nil {
		exitf("failed to set up cloud auth: %v", err)
	}

	b := broker.New(cfg, endpoint, archiver, cloudAuthCfg)

	ctx, cancel := context.WithCancel(context.Background())
	installSignalHandler(cancel)

	go logFlush()

	logging.Infof("selium-broker listening on %s (admin %s)", endpoint.Addr(), cfg.AdminAddr)
	err = b.Run(ctx)
	logging.Flush()
	if err != nil {
		exitf("broker exited: %v", err)
	}
}

// buildArchiver wires the optional S3 tiered archiver: a non-empty
// ArchiveBucket pulls the default AWS credential chain (env, shared
// config, IAM role) the same way any aws-sdk-go-v2 consumer does.
func buildArchiver(ctx context.Context, cfg broker.Config) (*msglog.Archiver, error) {
	if cfg.ArchiveBucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	return msglog.NewArchiver(client, cfg.ArchiveBucket, cfg.ArchivePrefix), nil
}

// buildCloudAuthConfig wires the opt-in cloud-auth step: a configured
// proxy public key enables it, nothing else does.
func buildCloudAuthConfig(cfg broker.Config) (broker.CloudAuthConfig, error) {
	if cfg.CloudAuthProxyPubKeyFile == "" {
		return broker.CloudAuthConfig{}, nil
	}
	data, err := os.ReadFile(cfg.CloudAuthProxyPubKeyFile)
	if err != nil {
		return broker.CloudAuthConfig{}, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return broker.CloudAuthConfig{}, fmt.Errorf("no PEM block in %s", cfg.CloudAuthProxyPubKeyFile)
	}
	return broker.CloudAuthConfig{
		Enabled:     true,
		ProxyPubKey: block.Bytes,
		Timeout:     cfg.CloudAuthTimeout,
	}, nil
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		logging.Flush()
	}
}

func installSignalHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		logging.Infof("selium-broker: received shutdown signal")
		cancel()
	}()
}

func printVer() {
	fmt.Printf("selium-broker version %s (build %s)\n", build, buildtime)
}

func exitf(format string, args ...any) {
	logging.Errorf(format, args...)
	logging.Flush()
	os.Exit(1)
}

// loadTLSFiles reads the PEM material transportquic.BuildTLSConfig
// expects from the paths the --cert/--key/--ca flags name. ca is
// optional: an empty path leaves CAPEM empty, meaning no mutual TLS and
// no cloud-auth-capable client verification.
func loadTLSFiles(certFile, keyFile, caFile string) (transportquic.TLSFiles, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return transportquic.TLSFiles{}, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return transportquic.TLSFiles{}, err
	}
	var caPEM []byte
	if caFile != "" {
		caPEM, err = os.ReadFile(caFile)
		if err != nil {
			return transportquic.TLSFiles{}, err
		}
	}
	return transportquic.TLSFiles{CertPEM: certPEM, KeyPEM: keyPEM, CAPEM: caPEM}, nil
}
