package reconcile

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/siritami/gatewaysync/internal/api"
	"github.com/siritami/gatewaysync/internal/config"
	"github.com/siritami/gatewaysync/internal/iface"
)

const (
	// listItemLimit is the maximum number of entries a single gateway list
	// accepts; larger domain sets are split across lists.
	listItemLimit = 1000
	// mutationInterval paces list and rule mutations so bulk uploads stay
	// within the gateway API rate limits.
	mutationInterval = 350 * time.Millisecond
)

// Syncer reconciles the gateway lists and the managed block rule against a
// desired set of domains. Every list and rule it creates carries the
// configured name prefix; only prefixed objects are ever deleted.
type Syncer struct {
	client   *api.Client
	notifier iface.Notifier
	prefix   string
	limiter  *rate.Limiter
}

// New creates a Syncer. An empty prefix falls back to the default.
func New(client *api.Client, notifier iface.Notifier, prefix string) *Syncer {
	if prefix == "" {
		prefix = config.DefaultListPrefix
	}
	return &Syncer{
		client:   client,
		notifier: notifier,
		prefix:   prefix,
		limiter:  rate.NewLimiter(rate.Every(mutationInterval), 1),
	}
}

func (s *Syncer) ruleName() string {
	return s.prefix + " block rule"
}

func (s *Syncer) managed(name string) bool {
	return strings.HasPrefix(name, s.prefix)
}

// Apply replaces the managed lists and block rule with ones covering the
// given domains. Mutations are sequential and rate-paced.
func (s *Syncer) Apply(ctx context.Context, domainSet []string) error {
	if err := s.removeManaged(ctx); err != nil {
		return err
	}

	chunks := chunk(domainSet, listItemLimit)
	listIDs := make([]string, 0, len(chunks))
	for i, entries := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		name := fmt.Sprintf("%s - chunk %03d", s.prefix, i+1)
		list, err := s.client.CreateList(ctx, name, "managed by "+s.prefix, entries)
		if err != nil {
			return fmt.Errorf("create list %q: %w", name, err)
		}
		log.Printf("INFO: created list %q with %d entries", name, len(entries))
		listIDs = append(listIDs, list.ID)
	}

	if len(listIDs) > 0 {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		rule, err := s.client.CreateRule(ctx, s.ruleName(), "managed by "+s.prefix, api.BlockExpression(listIDs))
		if err != nil {
			return fmt.Errorf("create block rule: %w", err)
		}
		log.Printf("INFO: created block rule %q", rule.Name)
	}

	s.notify(ctx, fmt.Sprintf("gateway sync complete: %d domains across %d lists", len(domainSet), len(listIDs)))
	return nil
}

// Teardown removes the managed block rule and all managed lists.
func (s *Syncer) Teardown(ctx context.Context) error {
	if err := s.removeManaged(ctx); err != nil {
		return err
	}
	s.notify(ctx, "gateway teardown complete: removed managed lists and block rule")
	return nil
}

// Status logs a summary of the managed objects currently on the gateway.
func (s *Syncer) Status(ctx context.Context) error {
	lists, err := s.client.Lists(ctx)
	if err != nil {
		return fmt.Errorf("fetch lists: %w", err)
	}
	var managedLists, entries int
	for _, l := range lists {
		if s.managed(l.Name) {
			managedLists++
			entries += l.Count
		}
	}

	rules, err := s.client.Rules(ctx)
	if err != nil {
		return fmt.Errorf("fetch rules: %w", err)
	}
	var managedRules int
	for _, r := range rules {
		if s.managed(r.Name) {
			managedRules++
		}
	}

	log.Printf("INFO: %d managed lists (%d entries), %d managed rules, %d lists total on the account", managedLists, entries, managedRules, len(lists))
	return nil
}

func (s *Syncer) removeManaged(ctx context.Context) error {
	rules, err := s.client.Rules(ctx)
	if err != nil {
		return fmt.Errorf("fetch rules: %w", err)
	}
	for _, r := range rules {
		if !s.managed(r.Name) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.client.DeleteRule(ctx, r.ID); err != nil {
			return fmt.Errorf("delete rule %q: %w", r.Name, err)
		}
		log.Printf("INFO: deleted rule %q", r.Name)
	}

	lists, err := s.client.Lists(ctx)
	if err != nil {
		return fmt.Errorf("fetch lists: %w", err)
	}
	for _, l := range lists {
		if !s.managed(l.Name) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.client.DeleteList(ctx, l.ID); err != nil {
			return fmt.Errorf("delete list %q: %w", l.Name, err)
		}
		log.Printf("INFO: deleted list %q", l.Name)
	}
	return nil
}

func (s *Syncer) notify(ctx context.Context, message string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, message)
	}
}

// chunk splits entries into groups of at most size, preserving order.
func chunk(entries []string, size int) [][]string {
	var out [][]string
	for len(entries) > size {
		out = append(out, entries[:size])
		entries = entries[size:]
	}
	if len(entries) > 0 {
		out = append(out, entries)
	}
	return out
}
