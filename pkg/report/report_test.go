package report

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/pathTraversal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setup() *zap.Logger {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return l
}

func transfer(to string) *pathTraversal.TransferSummary {
	return &pathTraversal.TransferSummary{
		To:     to,
		Amount: numbers.NewBigQuantity(big.NewInt(100)),
	}
}

func sampleTree() *pathTraversal.PathNode {
	return &pathTraversal.PathNode{
		Hash:     "0x01",
		Relation: pathTraversal.Relation_Root,
		Transfer: transfer("0xaaa"),
		Children: []*pathTraversal.PathNode{
			{
				Hash:       "0x02",
				Relation:   pathTraversal.Relation_DirectForward,
				Transfer:   transfer("0xbbb"),
				LeafReason: pathTraversal.LeafReason_NoSuccessors,
			},
			{
				Hash:       "0x03",
				Relation:   pathTraversal.Relation_Unknown,
				Transfer:   transfer("0xccc"),
				LeafReason: pathTraversal.LeafReason_Unclassified,
			},
		},
	}
}

func sampleReport(t *testing.T) *Report {
	r, err := NewReport(&ReportInput{
		Wallet:  "0xVictim",
		ChainId: 1,
		Asset:   pathTraversal.Asset{Symbol: "ETH", Decimals: 18},
		Depth:   3,
		Tree:    sampleTree(),
	})
	assert.Nil(t, err)
	return r
}

func Test_Report(t *testing.T) {
	t.Run("Test report summarizes the tree", func(t *testing.T) {
		r := sampleReport(t)
		assert.NotEmpty(t, r.RunId)
		assert.Equal(t, "0x01", r.RootHash)
		assert.Equal(t, 3, r.NodeCount)
		assert.Len(t, r.AttackerWallets, 2)
		assert.Equal(t, "0xaaa", r.AttackerWallets[0].Address)
		assert.Len(t, r.EvidenceRoot, 66)
	})
	t.Run("Test evidence root depends on every hash and their order", func(t *testing.T) {
		first, err := EvidenceRoot(sampleTree())
		assert.Nil(t, err)
		again, err := EvidenceRoot(sampleTree())
		assert.Nil(t, err)
		assert.Equal(t, first, again)

		reordered := sampleTree()
		reordered.Children[0], reordered.Children[1] = reordered.Children[1], reordered.Children[0]
		other, err := EvidenceRoot(reordered)
		assert.Nil(t, err)
		assert.NotEqual(t, first, other)
	})
	t.Run("Test evidence root of a single node tree", func(t *testing.T) {
		root, err := EvidenceRoot(&pathTraversal.PathNode{Hash: "0x01"})
		assert.Nil(t, err)
		assert.NotEmpty(t, root)

		_, err = EvidenceRoot(nil)
		assert.NotNil(t, err)
	})
}

func Test_FileSink(t *testing.T) {
	l := setup()

	t.Run("Test report is written under wallet and chain", func(t *testing.T) {
		dir := t.TempDir()
		sink := NewFileSink(dir, l)
		r := sampleReport(t)

		assert.Nil(t, sink.Write(context.Background(), r))

		path := filepath.Join(dir, "0xvictim", "1", "ETH.json")
		assert.Equal(t, path, sink.PathFor(r))

		data, err := os.ReadFile(path)
		assert.Nil(t, err)

		decoded := &Report{}
		assert.Nil(t, json.Unmarshal(data, decoded))
		assert.Equal(t, r.RunId, decoded.RunId)
		assert.Equal(t, r.EvidenceRoot, decoded.EvidenceRoot)
		assert.Equal(t, 3, decoded.Tree.Size())
	})
	t.Run("Test rewriting a report replaces the file", func(t *testing.T) {
		dir := t.TempDir()
		sink := NewFileSink(dir, l)

		first := sampleReport(t)
		second := sampleReport(t)
		assert.Nil(t, sink.Write(context.Background(), first))
		assert.Nil(t, sink.Write(context.Background(), second))

		data, err := os.ReadFile(sink.PathFor(second))
		assert.Nil(t, err)
		decoded := &Report{}
		assert.Nil(t, json.Unmarshal(data, decoded))
		assert.Equal(t, second.RunId, decoded.RunId)
	})
	t.Run("Test wallet and symbol cannot leave the output directory", func(t *testing.T) {
		dir := t.TempDir()
		sink := NewFileSink(dir, l)

		r := sampleReport(t)
		r.Wallet = "../../../etc"
		r.TokenSymbol = "../../x"

		path := sink.PathFor(r)
		assert.True(t, strings.HasPrefix(path, dir+string(filepath.Separator)))
		assert.Equal(t, 3, strings.Count(strings.TrimPrefix(path, dir), string(filepath.Separator)))
		assert.Nil(t, sink.Write(context.Background(), r))

		_, err := os.Stat(path)
		assert.Nil(t, err)
	})
	t.Run("Test dot segments fall back to defaults", func(t *testing.T) {
		dir := t.TempDir()
		sink := NewFileSink(dir, l)

		r := sampleReport(t)
		r.Wallet = "."
		r.TokenSymbol = " "
		assert.Equal(t, filepath.Join(dir, "unknown", "1", "native.json"), sink.PathFor(r))
	})
}

func Test_KafkaSink(t *testing.T) {
	l := setup()

	t.Run("Test report is published keyed by root hash", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		r := sampleReport(t)

		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, _ := msg.Key.Encode()
			if string(key) != "0x01" {
				return errors.New("unexpected key")
			}
			if msg.Topic != "reports" {
				return errors.New("unexpected topic")
			}
			value, _ := msg.Value.Encode()
			decoded := &Report{}
			if err := json.Unmarshal(value, decoded); err != nil {
				return err
			}
			if decoded.RunId != r.RunId {
				return errors.New("unexpected run id")
			}
			return nil
		})

		sink := NewKafkaSinkWithProducer(producer, "reports", l)
		assert.Nil(t, sink.Write(context.Background(), r))
		assert.Nil(t, sink.Close())
	})
	t.Run("Test publish failures are returned", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		sink := NewKafkaSinkWithProducer(producer, "reports", l)
		err := sink.Write(context.Background(), sampleReport(t))
		assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
		assert.Nil(t, sink.Close())
	})
}

type failingSink struct {
	writes int
}

func (f *failingSink) Write(ctx context.Context, r *Report) error {
	f.writes++
	return errors.New("disk full")
}

func (f *failingSink) Close() error {
	return nil
}

func Test_MultiSink(t *testing.T) {
	t.Run("Test every sink is written even when one fails", func(t *testing.T) {
		a := &failingSink{}
		b := &failingSink{}
		sink := NewMultiSink(a, b)

		err := sink.Write(context.Background(), sampleReport(t))
		assert.NotNil(t, err)
		assert.Equal(t, 1, a.writes)
		assert.Equal(t, 1, b.writes)
		assert.Nil(t, sink.Close())
	})
}
