package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface.
type program struct {
	configPath string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("ERPGate Server service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	if err := runServer(p.ctx, p.configPath); err != nil && p.svcLogger != nil {
		p.svcLogger.Errorf("ERPGate Server exited: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("ERPGate Server service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("ERPGate Server stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the platform service definition.
func getServiceConfig(configPath string) *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "ERPGate", "server")
	case "darwin":
		workingDir = "/Library/Application Support/ERPGate/server"
	default:
		workingDir = "/var/lib/erpgate/server"
	}

	return &service.Config{
		Name:             "ERPGateServer",
		DisplayName:      "ERPGate Server",
		Description:      "Multi-tenant ERP core. Serves permission-filtered menus per tenant and user.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run", "--config", configPath},
		Option: service.KeyValue{
			"StartType":        "automatic",
			"DelayedAutoStart": true,
			"OnFailure":        "restart",

			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",

			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

// handleServiceCommand installs, controls or runs the server as a platform
// service.
func handleServiceCommand(action, configPath string) error {
	prg := &program{configPath: configPath}
	svc, err := service.New(prg, getServiceConfig(configPath))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	switch action {
	case "install":
		return svc.Install()
	case "uninstall":
		return svc.Uninstall()
	case "start":
		return svc.Start()
	case "stop":
		return svc.Stop()
	case "run":
		return svc.Run()
	default:
		return fmt.Errorf("unknown service action %q", action)
	}
}
