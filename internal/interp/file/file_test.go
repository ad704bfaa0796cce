package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/task"
)

func openTemp(t *testing.T) *Interp {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing.img")
	i, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { i.Close() })
	return i
}

func TestFileWriteThenRead(t *testing.T) {
	i := openTemp(t)

	payload := block.NewBytes([]byte("durable payload"))
	_, err := i.Submit(0, task.Task{BlockID: 1, Kind: task.WriteBlock{Bytes: payload, Commit: task.CommitAndEof}})
	require.NoError(t, err)
	done := <-i.Completions()
	assert.IsType(t, interp.WriteDone{}, done.Kind)

	buf := make([]byte, payload.Len())
	mut := block.NewBytesMut(buf)
	_, err = i.Submit(0, task.Task{BlockID: 1, Kind: task.ReadBlock{Bytes: mut}})
	require.NoError(t, err)
	done = <-i.Completions()
	readDone := done.Kind.(interp.ReadDone)
	assert.Equal(t, "durable payload", string(readDone.Bytes.Bytes()))
}

func TestFileFlushSyncs(t *testing.T) {
	i := openTemp(t)
	_, err := i.Submit(0, task.Task{Kind: task.Flush{}})
	require.NoError(t, err)
	done := <-i.Completions()
	assert.IsType(t, interp.FlushDone{}, done.Kind)
}

func TestFileStandaloneFlush(t *testing.T) {
	i := openTemp(t)
	assert.NoError(t, i.Flush())
}

func TestFileSubmitAfterCloseErrors(t *testing.T) {
	i := openTemp(t)
	require.NoError(t, i.Close())

	_, err := i.Submit(0, task.Task{Kind: task.Flush{}})
	assert.Error(t, err)
}
