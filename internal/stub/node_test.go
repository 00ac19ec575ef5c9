// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

func TestClassManager_AddClassIsIdempotent(t *testing.T) {
	r := require.New(t)
	cm := NewClassManager()
	h1, exec1, err := cm.AddClass(context.Background(), []byte("program"))
	r.NoError(err)
	h2, exec2, err := cm.AddClass(context.Background(), []byte("program"))
	r.NoError(err)
	r.Equal(h1, h2)
	r.Equal(exec1, exec2)

	sierra, err := cm.GetSierra(context.Background(), h1)
	r.NoError(err)
	r.Equal([]byte("program"), sierra)
}

func TestExecutor_AlwaysSucceeds(t *testing.T) {
	r := require.New(t)
	var exec Executor
	outcome, err := exec.Execute(context.Background(), types.AccountTransaction{
		Internal: types.InternalRpcTransaction{Tx: types.RpcTransaction{Sender: types.Address{1}, Nonce: 4}},
	}, types.BlockContext{})
	r.NoError(err)
	r.Equal(types.OutcomeSuccess, outcome.Kind)
	r.Equal(types.Nonce(5), outcome.StateDiff.NoncesUpdated[types.Address{1}])
}

func TestCommitter_ProducesDistinctRootsPerCall(t *testing.T) {
	r := require.New(t)
	c := &Committer{}
	r1, err := c.Commit(context.Background(), types.StateDiffIncrement{NoncesUpdated: map[types.Address]types.Nonce{{1}: 1}}, types.NewRoots{})
	r.NoError(err)
	r2, err := c.Commit(context.Background(), types.StateDiffIncrement{NoncesUpdated: map[types.Address]types.Nonce{{2}: 1}}, r1)
	r.NoError(err)
	r.NotEqual(r1, r2)
}
