package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphCachesSnapshot(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("editor", true)
	perm := repo.addPermission("document", "read", true)
	repo.grant(role.ID, perm.ID)
	repo.assign(1, role.ID)

	eval, _ := testEvaluator(repo)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := eval.Evaluate(ctx, 1, "document", "read")
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.loads, "repeated evaluations reuse the snapshot")
}

func TestGraphInvalidateForcesReload(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("editor", true)
	repo.assign(1, role.ID)

	eval, graph := testEvaluator(repo)
	ctx := context.Background()

	decision, err := eval.Evaluate(ctx, 1, "document", "read")
	require.NoError(t, err)
	require.Equal(t, Deny, decision)

	// Grant lands, snapshot dropped.
	perm := repo.addPermission("document", "read", true)
	repo.grant(role.ID, perm.ID)
	graph.Invalidate()

	decision, err = eval.Evaluate(ctx, 1, "document", "read")
	require.NoError(t, err)
	require.Equal(t, Allow, decision)

	// Grant removed, snapshot dropped again.
	require.NoError(t, repo.DetachPermission(ctx, role.ID, perm.ID))
	graph.Invalidate()

	decision, err = eval.Evaluate(ctx, 1, "document", "read")
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

// blockingRBACRepo reads the graph data, then stalls once before returning
// it, modelling a rebuild whose storage read completed before a mutation
// committed but whose result is published after.
type blockingRBACRepo struct {
	*memoryRBACRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRBACRepo) LoadGraphData(ctx context.Context, superAdminRole string) (*GraphData, error) {
	data, err := r.memoryRBACRepo.LoadGraphData(ctx, superAdminRole)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return data, err
}

func TestGraphRebuildDoesNotOverwriteInvalidation(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("editor", true)
	perm := repo.addPermission("document", "read", true)
	repo.grant(role.ID, perm.ID)
	repo.assign(1, role.ID)

	blocking := &blockingRBACRepo{
		memoryRBACRepo: repo,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	graph := NewGraph(blocking, "super_admin")
	eval := NewEvaluator(graph)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eval.Evaluate(ctx, 1, "document", "read")
	}()
	<-blocking.entered

	// The grant is detached and committed while the rebuild still holds a
	// view from before the removal.
	require.NoError(t, repo.DetachPermission(ctx, role.ID, perm.ID))
	graph.Invalidate()
	close(blocking.release)
	<-done

	decision, err := eval.Evaluate(ctx, 1, "document", "read")
	require.NoError(t, err)
	require.Equal(t, Deny, decision, "evaluation after the revoking commit must not see the stale grant")
}

func TestGraphRebuildIsDeduped(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("editor", true)
	repo.assign(1, role.ID)

	eval, _ := testEvaluator(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eval.Evaluate(ctx, 1, "document", "read")
		}()
	}
	wg.Wait()

	// Concurrent cold-start evaluations collapse into very few loads; with
	// singleflight typically exactly one.
	require.LessOrEqual(t, repo.loads, 2)
}

func TestGraphErrorIsNotCached(t *testing.T) {
	repo := newMemoryRBACRepo()
	repo.loadErr = context.DeadlineExceeded

	eval, _ := testEvaluator(repo)
	ctx := context.Background()

	_, err := eval.Evaluate(ctx, 1, "document", "read")
	require.Error(t, err)

	// Storage recovers; the next evaluation succeeds.
	repo.mu.Lock()
	repo.loadErr = nil
	repo.mu.Unlock()
	_, err = eval.Evaluate(ctx, 1, "document", "read")
	require.NoError(t, err)
}
