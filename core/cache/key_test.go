// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cache_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/skycache/skycache/core/cache"
)

type keySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&keySuite{})

func (s *keySuite) TestStringRoundTrip(c *gc.C) {
	key := cache.NewKey(cache.NamespaceLoadBalancers, "lb-web", "abc123", "prod", "region-one")
	c.Assert(key.String(), gc.Equals, "loadBalancers:lb-web:abc123:prod:region-one")

	parsed, err := cache.ParseKey(key.String())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(parsed, gc.Equals, key)
}

func (s *keySuite) TestParseRejectsMalformed(c *gc.C) {
	for _, bad := range []string{
		"",
		"loadBalancers:lb-web:abc123:prod",
		"loadBalancers:lb-web:abc123:prod:region-one:extra",
		"loadBalancers::abc123:prod:region-one",
	} {
		_, err := cache.ParseKey(bad)
		c.Check(err, jc.ErrorIs, errors.NotValid, gc.Commentf("input %q", bad))
	}
}

func (s *keySuite) TestValidateRejectsSeparator(c *gc.C) {
	key := cache.NewKey("ns", "a:b", "id", "acct", "region")
	c.Assert(key.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *keySuite) TestMatchesWildcardID(c *gc.C) {
	pattern := cache.PatternKey(cache.NamespacePorts, "vip-port", "prod", "region-one")

	match := cache.NewKey(cache.NamespacePorts, "vip-port", "any-id-at-all", "prod", "region-one")
	c.Check(match.Matches(pattern), jc.IsTrue)

	for _, miss := range []cache.Key{
		cache.NewKey(cache.NamespaceVips, "vip-port", "id", "prod", "region-one"),
		cache.NewKey(cache.NamespacePorts, "other-port", "id", "prod", "region-one"),
		cache.NewKey(cache.NamespacePorts, "vip-port", "id", "staging", "region-one"),
		cache.NewKey(cache.NamespacePorts, "vip-port", "id", "prod", "region-two"),
	} {
		c.Check(miss.Matches(pattern), jc.IsFalse, gc.Commentf("key %s", miss))
	}
}

func (s *keySuite) TestMatchesWildcardName(c *gc.C) {
	pattern := cache.NewKey(cache.NamespaceOnDemand, cache.Wildcard, cache.Wildcard, "prod", "region-one")
	key := cache.NewKey(cache.NamespaceOnDemand, "lb-web", "abc", "prod", "region-one")
	c.Check(key.Matches(pattern), jc.IsTrue)
}

func (s *keySuite) TestExactPatternNeedsFullEquality(c *gc.C) {
	pattern := cache.NewKey("ns", "name", "id", "acct", "region")
	c.Check(pattern.Matches(pattern), jc.IsTrue)
	other := cache.NewKey("ns", "name", "id2", "acct", "region")
	c.Check(other.Matches(pattern), jc.IsFalse)
}

func (s *keySuite) TestIsPattern(c *gc.C) {
	c.Check(cache.PatternKey("ns", "n", "a", "r").IsPattern(), jc.IsTrue)
	c.Check(cache.NewKey("ns", "n", "i", "a", "r").IsPattern(), jc.IsFalse)
}
