package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/task"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	m := New(4096)

	payload := block.NewBytes([]byte("hello world"))
	_, err := m.Submit(0, task.Task{BlockID: 1, Kind: task.WriteBlock{Bytes: payload, Commit: task.CommitAndEof}})
	require.NoError(t, err)

	done := <-m.Completions()
	assert.Equal(t, block.Id(1), done.BlockID)
	assert.IsType(t, interp.WriteDone{}, done.Kind)

	buf := make([]byte, payload.Len())
	mut := block.NewBytesMut(buf)
	_, err = m.Submit(0, task.Task{BlockID: 1, Kind: task.ReadBlock{Bytes: mut}})
	require.NoError(t, err)

	done = <-m.Completions()
	readDone := done.Kind.(interp.ReadDone)
	assert.Equal(t, "hello world", string(readDone.Bytes.Bytes()))
}

func TestDeleteZeroesRegion(t *testing.T) {
	m := New(4096)
	payload := block.NewBytes([]byte("secret"))
	_, err := m.Submit(0, task.Task{BlockID: 1, Kind: task.WriteBlock{Bytes: payload, Commit: task.CommitAndEof}})
	require.NoError(t, err)
	<-m.Completions()

	_, err = m.Submit(0, task.Task{BlockID: 1, Kind: task.DeleteBlock{Length: uint64(payload.Len())}})
	require.NoError(t, err)
	done := <-m.Completions()
	assert.IsType(t, interp.DeleteDone{}, done.Kind)

	buf := make([]byte, payload.Len())
	mut := block.NewBytesMut(buf)
	_, err = m.Submit(0, task.Task{BlockID: 1, Kind: task.ReadBlock{Bytes: mut}})
	require.NoError(t, err)
	<-m.Completions()

	for _, b := range mut.Bytes() {
		assert.Equal(t, byte(0), b)
	}
}

func TestFlushCompletesImmediately(t *testing.T) {
	m := New(4096)
	_, err := m.Submit(0, task.Task{Kind: task.Flush{}})
	require.NoError(t, err)
	done := <-m.Completions()
	assert.IsType(t, interp.FlushDone{}, done.Kind)
}

func TestSubmitAfterCloseErrors(t *testing.T) {
	m := New(4096)
	require.NoError(t, m.Close())

	_, err := m.Submit(0, task.Task{Kind: task.Flush{}})
	assert.Error(t, err)
}
