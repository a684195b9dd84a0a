package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

type stubEngine struct {
	id string
}

func (s *stubEngine) Info() interfaces.EngineInfo {
	return interfaces.EngineInfo{ID: s.id, Description: "stub"}
}

func (s *stubEngine) Extract(ctx context.Context, doc []byte, pages interfaces.PageRange, params map[string]string) ([]interfaces.PageResult, error) {
	return []interfaces.PageResult{{PageNumber: 1, Text: "stub text"}}, nil
}

func TestRegistryUnknownEngineFailsFast(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	_, err := registry.Engine("nope")
	require.ErrorIs(t, err, interfaces.ErrUnknownEngine)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	require.NoError(t, registry.Register(&stubEngine{id: "beta"}))
	require.NoError(t, registry.Register(&stubEngine{id: "alpha"}))

	engine, err := registry.Engine("alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", engine.Info().ID)

	// Duplicate ids are rejected
	require.Error(t, registry.Register(&stubEngine{id: "alpha"}))

	infos := registry.List()
	require.Len(t, infos, 2)
	require.Equal(t, "alpha", infos[0].ID)
	require.Equal(t, "beta", infos[1].ID)
}

func TestCommandEngineUnavailableBinary(t *testing.T) {
	engine := NewCommandEngine("no-such-ocr-binary-xyz", 0, arbor.NewLogger())

	_, err := engine.Extract(context.Background(), []byte("img"), interfaces.PageRange{}, nil)
	require.ErrorIs(t, err, interfaces.ErrEngineUnavailable)
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"4\t1\t1\t1\t1\t0\t10\t10\t200\t20\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t91.5\thello\n" +
		"5\t1\t1\t1\t1\t2\t70\t10\t60\t20\t88.5\tworld\n"

	text, confidence, blocks := parseTSV(tsv)
	require.Equal(t, "hello world", text)
	require.InDelta(t, 0.9, confidence, 0.001)
	require.Len(t, blocks, 2)
	require.Equal(t, "hello", blocks[0].Text)
	require.Equal(t, 50.0, blocks[0].Width)
}
