// Package resolver orchestrates the resolution of incoming operations:
// authorization gates, filter-argument translation, pagination, the
// persistence call, serialization-context resolution, and response
// shaping. Each operation resolves independently; the only shared
// state is the immutable descriptor registry.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/resolvent-dev/resolvent/internal/authz"
	"github.com/resolvent-dev/resolvent/internal/cache"
	"github.com/resolvent-dev/resolvent/internal/descriptor"
	qerr "github.com/resolvent-dev/resolvent/internal/errors"
	"github.com/resolvent-dev/resolvent/internal/filter"
	"github.com/resolvent-dev/resolvent/internal/groups"
	"github.com/resolvent-dev/resolvent/internal/pagination"
	"github.com/resolvent-dev/resolvent/internal/storage"
)

// maxRelationDepth bounds nested relation shaping so cyclic relation
// graphs terminate. Beyond the limit a relation field keeps its raw
// identifier value.
const maxRelationDepth = 3

// Resolver resolves query and mutation operations against the
// registry and the persistence collaborator. Safe for concurrent use.
type Resolver struct {
	registry    *descriptor.Registry
	store       storage.DataSource
	counts      cache.Cache
	pager       *pagination.Engine
	logger      *zap.Logger
	translators map[string]*filter.Translator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCountCache enables read-through caching of collection counts.
func WithCountCache(c cache.Cache) Option {
	return func(r *Resolver) { r.counts = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithPager overrides the pagination engine (page-size limits).
func WithPager(pager *pagination.Engine) Option {
	return func(r *Resolver) { r.pager = pager }
}

// New builds a resolver, deriving and caching the filter-argument
// translator for every resource that exposes the query operation.
func New(registry *descriptor.Registry, store storage.DataSource, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		registry:    registry,
		store:       store,
		pager:       pagination.NewEngine(),
		logger:      zap.NewNop(),
		translators: make(map[string]*filter.Translator),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, res := range registry.Resources() {
		if !res.HasOperation(descriptor.OperationQuery) {
			continue
		}
		t, err := filter.NewTranslator(registry, res, descriptor.OperationQuery)
		if err != nil {
			return nil, err
		}
		r.translators[res.Name] = t
	}
	return r, nil
}

// Registry returns the descriptor registry the resolver serves.
func (r *Resolver) Registry() *descriptor.Registry {
	return r.registry
}

// Translator returns the cached filter translator for a resource, or
// nil when the resource does not expose the query operation.
func (r *Resolver) Translator(resource string) *filter.Translator {
	return r.translators[resource]
}

// QueryItem resolves a single-item query. Not-found and item-level
// denial surface identically so existence does not leak.
func (r *Resolver) QueryItem(ctx context.Context, resource, id string, principal authz.Principal) (map[string]interface{}, error) {
	res, err := r.exposed(resource, descriptor.OperationQuery)
	if err != nil {
		return nil, err
	}

	rule := res.ActiveAccess(descriptor.OperationQuery)
	if d := authz.EvaluateCollection(rule, principal); !d.Allowed {
		return nil, qerr.NewAuthorization(d.Message)
	}

	record, err := r.store.FetchOne(ctx, resource, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, r.notFound(res)
		}
		return nil, r.wrapStore("fetch", err)
	}

	if d := authz.Evaluate(rule, principal, record); !d.Allowed {
		r.logger.Debug("item-level denial on query",
			zap.String("resource", resource), zap.String("id", id))
		return nil, r.notFound(res)
	}

	sctx := groups.ResolveContext(res, descriptor.OperationQuery)
	return r.shapeRecord(ctx, res, record, sctx.Output, principal, maxRelationDepth)
}

// QueryCollection resolves a collection query: collection-level
// authorization, argument translation, pagination, item-level
// authorization of every fetched node, and shaping. A denied item
// fails the whole operation.
func (r *Resolver) QueryCollection(ctx context.Context, resource string, args map[string]interface{}, window pagination.WindowRequest, principal authz.Principal) (*pagination.Connection, error) {
	res, err := r.exposed(resource, descriptor.OperationQuery)
	if err != nil {
		return nil, err
	}

	rule := res.ActiveAccess(descriptor.OperationQuery)
	if d := authz.EvaluateCollection(rule, principal); !d.Allowed {
		return nil, qerr.NewAuthorization(d.Message)
	}

	translator := r.translators[resource]
	spec, ordering, err := translator.Translate(args)
	if err != nil {
		return nil, err
	}

	fingerprint := pagination.Fingerprint(resource, spec, ordering)
	total, err := r.count(ctx, resource, spec, fingerprint)
	if err != nil {
		return nil, err
	}

	conn, err := r.pager.Paginate(ctx, window, fingerprint, total, func(ctx context.Context, offset, limit int) ([]map[string]interface{}, error) {
		items, err := r.store.FetchWindow(ctx, resource, spec, ordering, offset, limit)
		if err != nil {
			return nil, r.wrapStore("fetch", err)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	sctx := groups.ResolveContext(res, descriptor.OperationQuery)
	for i := range conn.Edges {
		node := conn.Edges[i].Node
		if d := authz.Evaluate(rule, principal, node); !d.Allowed {
			r.logger.Debug("item-level denial in collection",
				zap.String("resource", resource))
			return nil, qerr.NewAuthorization(d.Message)
		}
		shaped, err := r.shapeRecord(ctx, res, node, sctx.Output, principal, maxRelationDepth)
		if err != nil {
			return nil, err
		}
		conn.Edges[i].Node = shaped
	}
	return conn, nil
}

// Mutate resolves a create, update, or delete operation. The input is
// filtered through the denormalization group set before any
// persistence access; the response is shaped through the independently
// resolved normalization set.
func (r *Resolver) Mutate(ctx context.Context, resource string, op descriptor.Operation, id string, input map[string]interface{}, principal authz.Principal) (map[string]interface{}, error) {
	if !op.IsMutation() {
		return nil, qerr.NewValidation(string(op), "not a mutation operation")
	}
	res, err := r.exposed(resource, op)
	if err != nil {
		return nil, err
	}

	rule := res.ActiveAccess(op)
	if d := authz.EvaluateCollection(rule, principal); !d.Allowed {
		return nil, qerr.NewAuthorization(d.Message)
	}

	sctx := groups.ResolveContext(res, op)
	accepted := groups.Accept(res, input, sctx.Input)

	var record map[string]interface{}
	switch op {
	case descriptor.OperationCreate:
		// Create has no fetched object; object-bound rules run
		// against the accepted input.
		if d := authz.Evaluate(rule, principal, accepted); !d.Allowed {
			return nil, qerr.NewAuthorization(d.Message)
		}
		record, err = r.store.Mutate(ctx, resource, op, accepted)
		if err != nil {
			return nil, r.wrapStore("create", err)
		}

	case descriptor.OperationUpdate, descriptor.OperationDelete:
		existing, err := r.store.FetchOne(ctx, resource, id)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil, r.notFound(res)
			}
			return nil, r.wrapStore("fetch", err)
		}
		if d := authz.Evaluate(rule, principal, existing); !d.Allowed {
			r.logger.Debug("item-level denial on mutation",
				zap.String("resource", resource),
				zap.String("operation", string(op)))
			return nil, r.notFound(res)
		}

		payload := map[string]interface{}{"id": id}
		if op == descriptor.OperationUpdate {
			for k, v := range accepted {
				if k != "id" {
					payload[k] = v
				}
			}
		}
		record, err = r.store.Mutate(ctx, resource, op, payload)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil, r.notFound(res)
			}
			return nil, r.wrapStore(string(op), err)
		}
	}

	// Mutations change collection counts; drop any cached count for
	// the unfiltered collection.
	if r.counts != nil {
		fp := pagination.Fingerprint(resource, filter.Spec{}, filter.Ordering(res.DefaultOrder))
		_ = r.counts.Delete(ctx, cache.CountKey(resource, fp))
	}

	return r.shapeRecord(ctx, res, record, sctx.Output, principal, maxRelationDepth)
}

// exposed returns the descriptor when it declares the operation, or a
// rejected-operation validation error before any persistence access.
func (r *Resolver) exposed(resource string, op descriptor.Operation) (*descriptor.Resource, error) {
	res := r.registry.Resource(resource)
	if res == nil {
		return nil, qerr.NewValidation(resource, "unknown resource")
	}
	if !res.HasOperation(op) {
		return nil, &qerr.ValidationError{
			Argument: string(op),
			Message:  qerr.ErrOperationNotExposed.Error() + " " + resource,
		}
	}
	return res, nil
}

func (r *Resolver) count(ctx context.Context, resource string, spec filter.Spec, fingerprint uint64) (int, error) {
	key := cache.CountKey(resource, fingerprint)
	if r.counts != nil {
		if n, err := r.counts.Get(ctx, key); err == nil {
			return n, nil
		}
	}

	n, err := r.store.Count(ctx, resource, spec)
	if err != nil {
		return 0, r.wrapStore("count", err)
	}

	if r.counts != nil {
		if err := r.counts.Set(ctx, key, n, 0); err != nil {
			r.logger.Warn("count cache write failed", zap.Error(err))
		}
	}
	return n, nil
}

// shapeRecord applies the output group set and resolves visible
// relation fields into nested objects. Independent relation fields
// fetch concurrently and join before the record is returned; a
// cancelled context abandons the remaining fetches.
func (r *Resolver) shapeRecord(ctx context.Context, res *descriptor.Resource, record map[string]interface{}, output []string, principal authz.Principal, depth int) (map[string]interface{}, error) {
	shaped := groups.Shape(res, record, output)
	if shaped == nil || depth <= 0 {
		return shaped, nil
	}

	type relation struct {
		name   string
		target *descriptor.Resource
		id     string
	}
	var relations []relation
	for i := range res.Fields {
		field := &res.Fields[i]
		if field.Type != descriptor.TypeRelation {
			continue
		}
		value, ok := shaped[field.Name]
		if !ok || value == nil {
			continue
		}
		target := r.registry.Resource(field.Relation)
		if target == nil || !target.HasOperation(descriptor.OperationQuery) {
			continue
		}
		relations = append(relations, relation{
			name:   field.Name,
			target: target,
			id:     asString(value),
		})
	}
	if len(relations) == 0 {
		return shaped, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, rel := range relations {
		wg.Add(1)
		go func(rel relation) {
			defer wg.Done()
			nested, err := r.resolveRelation(ctx, rel.target, rel.id, principal, depth-1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			shaped[rel.name] = nested
		}(rel)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return shaped, nil
}

// resolveRelation fetches and shapes one related record under the
// target's own query-operation access rule and output groups. A
// missing target resolves to null; a denied target fails the
// operation.
func (r *Resolver) resolveRelation(ctx context.Context, target *descriptor.Resource, id string, principal authz.Principal, depth int) (map[string]interface{}, error) {
	record, err := r.store.FetchOne(ctx, target.Name, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, r.wrapStore("fetch", err)
	}

	rule := target.ActiveAccess(descriptor.OperationQuery)
	if d := authz.Evaluate(rule, principal, record); !d.Allowed {
		return nil, qerr.NewAuthorization(d.Message)
	}

	sctx := groups.ResolveContext(target, descriptor.OperationQuery)
	return r.shapeRecord(ctx, target, record, sctx.Output, principal, depth)
}

// notFound builds the shared denial for missing or item-denied
// records.
func (r *Resolver) notFound(res *descriptor.Resource) error {
	return qerr.NewAuthorization(res.Name + " not found")
}

// wrapStore wraps collaborator failures as persistence errors.
// Context cancellation passes through so partial results are
// discarded, never returned.
func (r *Resolver) wrapStore(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.logger.Error("persistence collaborator failed",
		zap.String("operation", op), zap.Error(err))
	return qerr.WrapPersistence(op, err)
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
