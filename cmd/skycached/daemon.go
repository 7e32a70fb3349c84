// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycache/skycache/internal/agent"
	"github.com/skycache/skycache/internal/cachestore"
	"github.com/skycache/skycache/internal/cachestore/leveldb"
	"github.com/skycache/skycache/internal/cachestore/memory"
	"github.com/skycache/skycache/internal/config"
	"github.com/skycache/skycache/internal/discovery"
	"github.com/skycache/skycache/internal/metrics"
	"github.com/skycache/skycache/internal/provider/openstack"
	"github.com/skycache/skycache/internal/worker/cacheagent"
)

type daemon struct {
	store     cachestore.Store
	lbAgents  []*agent.LoadBalancerAgent
	updaters  map[string]*discovery.Updater
	collector *metrics.Collector
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Trace(err)
	}

	store, closeStore, err := openStore(cfg.Cache)
	if err != nil {
		return errors.Trace(err)
	}
	defer closeStore()

	d := &daemon{
		store:     store,
		updaters:  make(map[string]*discovery.Updater),
		collector: metrics.NewMetricsCollector(),
	}
	registry := prometheus.NewRegistry()
	if err := registry.Register(d.collector); err != nil {
		return errors.Trace(err)
	}

	runner := worker.NewRunner(worker.RunnerParams{
		Clock:        clock.WallClock,
		IsFatal:      func(error) bool { return false },
		RestartDelay: 3 * time.Second,
	})
	defer func() {
		runner.Kill()
		_ = runner.Wait()
	}()

	var registryClient discovery.RegistryClient
	if cfg.Discovery.URL != "" {
		client, err := discovery.NewClient(cfg.Discovery.URL, nil)
		if err != nil {
			return errors.Trace(err)
		}
		registryClient = client
	}

	for _, account := range cfg.Accounts {
		for _, region := range account.Regions {
			if err := d.wireScope(runner, store, cfg, account, region, registryClient); err != nil {
				return errors.Annotatef(err, "wiring %s/%s", account.Name, region)
			}
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           d.handler(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("caught %v, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return errors.Annotate(err, "http server")
	}
}

func openStore(cfg config.Cache) (cachestore.Store, func(), error) {
	switch cfg.Backend {
	case "leveldb":
		store, err := leveldb.Open(cfg.Path)
		if err != nil {
			return nil, nil, errors.Annotatef(err, "opening cache store at %q", cfg.Path)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}

// wireScope builds the provider client and the three caching agents
// for one (account, region), and starts a scheduled worker for each.
func (d *daemon) wireScope(
	runner *worker.Runner,
	store cachestore.Store,
	cfg *config.Config,
	account config.Account,
	region string,
	registryClient discovery.RegistryClient,
) error {
	osClient, err := openstack.NewClient(openstack.Credentials{
		AuthURL:       account.AuthURL,
		Username:      account.Username,
		Password:      account.Password,
		TenantName:    account.TenantName,
		DomainName:    account.Domain,
		UserDomain:    account.UserDomain,
		ProjectDomain: account.ProjectDomain,
		Region:        region,
		V3:            account.AuthVersion == 3,
	})
	if err != nil {
		return errors.Trace(err)
	}

	base := agent.Config{
		Account:       account.Name,
		Region:        region,
		Store:         store,
		Clock:         clock.WallClock,
		LoadBalancers: osClient,
		Networking:    osClient,
	}
	infra, err := agent.NewInfrastructureAgent(base)
	if err != nil {
		return errors.Trace(err)
	}
	support, err := agent.NewLoadBalancerSupportAgent(base)
	if err != nil {
		return errors.Trace(err)
	}
	lb, err := agent.NewLoadBalancerAgent(base)
	if err != nil {
		return errors.Trace(err)
	}
	d.lbAgents = append(d.lbAgents, lb)

	for _, a := range []agent.Agent{infra, support, lb} {
		a := a
		err := runner.StartWorker(a.Name(), func() (worker.Worker, error) {
			return cacheagent.NewWorker(cacheagent.Config{
				Agent:    a,
				Store:    store,
				Clock:    clock.WallClock,
				Interval: cfg.Cache.ScanInterval(),
				Metrics:  d.collector,
			})
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	updater, err := discovery.NewUpdater(discovery.UpdaterConfig{
		Registry:      registryClient,
		Groups:        osClient,
		Compute:       osClient,
		Clock:         clock.WallClock,
		RetryDelay:    cfg.Discovery.ParsedRetryDelay(),
		ThrottleDelay: cfg.Discovery.ParsedThrottleDelay(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	d.updaters[account.Name+"/"+region] = updater
	return nil
}

func (d *daemon) handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/cache/refresh", d.handleRefresh)
	mux.HandleFunc("/cache/pending", d.handlePending)
	mux.HandleFunc("/discovery/status", d.handleDiscoveryStatus)
	return mux
}

type refreshResponse struct {
	Handled bool   `json:"handled"`
	Exists  bool   `json:"exists,omitempty"`
	Key     string `json:"key,omitempty"`
}

// handleRefresh forces a refresh of a single load balancer. The body
// is the loosely-typed criteria map: name, account and region.
func (d *daemon) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	criteria, err := agent.CriteriaFromMap(agent.RefreshLoadBalancer, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, lb := range d.lbAgents {
		result, err := lb.Handle(r.Context(), criteria)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if result == nil {
			continue
		}
		outcome := "evicted"
		if result.Exists {
			outcome = "refreshed"
		}
		d.collector.OnDemandHandled(lb.Name(), outcome)
		writeJSON(w, http.StatusOK, refreshResponse{
			Handled: true,
			Exists:  result.Exists,
			Key:     result.Key.String(),
		})
		return
	}
	writeJSON(w, http.StatusNotFound, refreshResponse{Handled: false})
}

// handlePending reports the outstanding on-demand markers, optionally
// narrowed by account and region query parameters.
func (d *daemon) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	account := r.URL.Query().Get("account")
	region := r.URL.Query().Get("region")

	pending := make([]map[string]interface{}, 0)
	for _, lb := range d.lbAgents {
		if account != "" && lb.Account() != account {
			continue
		}
		if region != "" && lb.Region() != region {
			continue
		}
		requests, err := lb.PendingOnDemandRequests(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, request := range requests {
			pending = append(pending, request)
		}
	}
	writeJSON(w, http.StatusOK, pending)
}

type discoveryStatusRequest struct {
	Account     string   `json:"account"`
	Region      string   `json:"region"`
	ServerGroup string   `json:"serverGroup"`
	InstanceIDs []string `json:"instanceIds"`
	Status      string   `json:"status"`
	Phase       string   `json:"phase"`
}

type discoveryStatusResponse struct {
	Failed  bool     `json:"failed"`
	History []string `json:"history"`
	Error   string   `json:"error,omitempty"`
}

// handleDiscoveryStatus enables or disables a batch of instances in
// the discovery registry.
func (d *daemon) handleDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req discoveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updater, ok := d.updaters[req.Account+"/"+req.Region]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown scope %s/%s", req.Account, req.Region), http.StatusNotFound)
		return
	}
	phase := req.Phase
	if phase == "" {
		phase = "DISCOVERY"
	}

	task := discovery.NewBasicTask()
	err := updater.UpdateInstances(r.Context(), task, phase, discovery.Status(req.Status), discovery.Request{
		Region:      req.Region,
		ServerGroup: req.ServerGroup,
		InstanceIDs: req.InstanceIDs,
	})
	resp := discoveryStatusResponse{
		Failed:  task.Failed() || err != nil,
		History: task.History(),
	}
	status := http.StatusOK
	switch {
	case errors.Is(err, discovery.ErrNotConfigured):
		resp.Error = err.Error()
		status = http.StatusConflict
	case errors.Is(err, errors.NotValid):
		resp.Error = err.Error()
		status = http.StatusBadRequest
	case err != nil:
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.Errorf("writing response: %v", err)
	}
}
