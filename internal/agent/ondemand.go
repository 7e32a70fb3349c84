// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/provider"
)

// ErrKeyUnresolvable is returned internally when an on-demand refresh
// cannot map the requested resource to a concrete cache key. The
// handler logs it and turns the refresh into a no-op.
const ErrKeyUnresolvable = errors.ConstError("cache key unresolvable")

// RefreshKind discriminates the resource types an on-demand refresh can
// target.
type RefreshKind string

// RefreshLoadBalancer targets a load-balancer pool by name.
const RefreshLoadBalancer RefreshKind = "LoadBalancer"

// RefreshCriteria is the validated form of an on-demand refresh
// request.
type RefreshCriteria struct {
	Kind    RefreshKind
	Name    string
	Account string
	Region  string
}

// Validate checks the criteria are complete.
func (c RefreshCriteria) Validate() error {
	if c.Kind == "" {
		return errors.NotValidf("refresh criteria without kind")
	}
	if c.Name == "" {
		return errors.NotValidf("refresh criteria without resource name")
	}
	if c.Account == "" || c.Region == "" {
		return errors.NotValidf("refresh criteria without account/region")
	}
	return nil
}

// CriteriaFromMap decodes the loosely-typed attribute map accepted at
// the refresh boundary. The map must carry the resource's natural key
// plus account and region.
func CriteriaFromMap(kind RefreshKind, data map[string]interface{}) (RefreshCriteria, error) {
	criteria := RefreshCriteria{Kind: kind}
	var ok bool
	if criteria.Name, ok = data["name"].(string); !ok {
		return RefreshCriteria{}, errors.NotValidf("refresh request without %q", "name")
	}
	if criteria.Account, ok = data["account"].(string); !ok {
		return RefreshCriteria{}, errors.NotValidf("refresh request without %q", "account")
	}
	if criteria.Region, ok = data["region"].(string); !ok {
		return RefreshCriteria{}, errors.NotValidf("refresh request without %q", "region")
	}
	return criteria, errors.Trace(criteria.Validate())
}

// OnDemandResult describes the outcome of an on-demand refresh: whether
// the resource exists at the provider, the resolved cache key, and the
// reconciliation result that was applied.
type OnDemandResult struct {
	Exists bool
	Key    cache.Key
	Result *cache.Result
}

// Handle runs an on-demand refresh of a single load balancer. A request
// for another kind or another (account, region) scope is not handled
// and returns (nil, nil). A request whose key cannot be resolved is
// logged and dropped, also returning (nil, nil).
func (a *LoadBalancerAgent) Handle(ctx context.Context, criteria RefreshCriteria) (*OnDemandResult, error) {
	if criteria.Kind != RefreshLoadBalancer ||
		criteria.Account != a.account ||
		criteria.Region != a.region {
		return nil, nil
	}
	if err := criteria.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	pool, err := a.fetchPool(ctx, criteria.Name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	exists := pool != nil

	key, err := a.resolveKey(ctx, criteria.Name, pool)
	if errors.Is(err, ErrKeyUnresolvable) {
		logger.Infof("%s: on-demand refresh of %q: %v", a.Name(), criteria.Name, err)
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}

	now := a.clock.Now()
	builder := cache.NewResultBuilder(now)
	if exists {
		attrs := a.poolAttributes(ctx, *pool)
		builder.Namespace(cache.NamespaceLoadBalancers).Keep(key, attrs)
		record := cache.Record{
			RequestID:  uuid.NewString(),
			CacheTime:  now,
			Attributes: attrs,
		}
		builder.Namespace(cache.NamespaceOnDemand).Keep(key, record.ToAttrs())
	} else {
		builder.Namespace(cache.NamespaceLoadBalancers).Evict(key)
		builder.Namespace(cache.NamespaceOnDemand).Evict(key)
	}

	result := builder.Build()
	if err := a.store.Put(ctx, result); err != nil {
		return nil, errors.Annotatef(err, "applying on-demand refresh of %q", key)
	}
	logger.Debugf("%s: on-demand refresh of %q, exists=%v", a.Name(), key, exists)
	return &OnDemandResult{Exists: exists, Key: key, Result: result}, nil
}

// fetchPool fetches the named pool, treating provider not-found as a
// nil pool. A pool whose vip no longer exists is also treated as
// absent: deletes are asynchronous on the provider side and a listed
// pool may outlive its vip.
func (a *LoadBalancerAgent) fetchPool(ctx context.Context, name string) (*provider.Pool, error) {
	pool, err := a.lb.GetPoolByName(ctx, a.region, name)
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "fetching pool %q", name)
	}
	if pool.VipID != "" {
		if _, err := a.lb.GetVip(ctx, a.region, pool.VipID); errors.Is(err, errors.NotFound) {
			logger.Debugf("%s: pool %q references missing vip %q, treating as deleted",
				a.Name(), name, pool.VipID)
			return nil, nil
		} else if err != nil {
			return nil, errors.Annotatef(err, "verifying vip %q", pool.VipID)
		}
	}
	return pool, nil
}

// resolveKey maps the refresh target to its real cache key. With a live
// pool the provider id is authoritative. Without one, the existing
// cache entry for the name supplies the id; no entry means the key is
// unresolvable.
func (a *LoadBalancerAgent) resolveKey(ctx context.Context, name string, pool *provider.Pool) (cache.Key, error) {
	if pool != nil {
		return a.poolKey(pool.Name, pool.ID), nil
	}
	pattern := cache.Key{
		Namespace: cache.NamespaceLoadBalancers,
		Name:      name,
		ID:        cache.Wildcard,
		Account:   a.account,
		Region:    a.region,
	}
	keys, err := a.store.FilterIdentifiers(ctx, cache.NamespaceLoadBalancers, pattern)
	if err != nil {
		return cache.Key{}, errors.Trace(err)
	}
	if len(keys) == 0 {
		return cache.Key{}, errors.Annotatef(ErrKeyUnresolvable, "pool %q", name)
	}
	return keys[0], nil
}

// PendingOnDemandRequests snapshots the outstanding on-demand markers
// in this agent's (account, region) scope, for callers polling refresh
// completion.
func (a *LoadBalancerAgent) PendingOnDemandRequests(ctx context.Context) ([]cache.Attributes, error) {
	records, err := a.onDemand.Pending(ctx, a.account, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]cache.Attributes, 0, len(records))
	for key, rec := range records {
		out = append(out, cache.Attributes{
			"key":            key.String(),
			"requestId":      rec.RequestID,
			"cacheTime":      rec.CacheTime,
			"processedCount": rec.ProcessedCount,
			"processedTime":  rec.ProcessedTime,
		})
	}
	return out, nil
}
